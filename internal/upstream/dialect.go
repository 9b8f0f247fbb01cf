package upstream

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kursadbilgin/hrp-console/internal/domain"
)

// upstreamDateLayout is the format both dialects use for date parameters.
const upstreamDateLayout = "2006-01-02"

// Dialect encodes a normalized query into one upstream route's parameter
// vocabulary. Two dialects coexist: the legacy batches route takes a
// day-count window, the newer routes take an explicit date pair. Callers
// declare which dialect a given route expects.
type Dialect interface {
	Name() string
	Encode(q domain.QueryState, now time.Time) url.Values
}

// DayCountDialect speaks ?Page&Limit&DaysRange. It has no sort or search
// vocabulary, so ordering for routes behind it is always applied
// client-side.
type DayCountDialect struct{}

func (DayCountDialect) Name() string { return "daycount" }

func (DayCountDialect) Encode(q domain.QueryState, _ time.Time) url.Values {
	values := url.Values{}
	values.Set("Page", strconv.Itoa(q.Page+1))
	values.Set("Limit", strconv.Itoa(q.PageSize))
	values.Set("DaysRange", strconv.Itoa(q.DateRange.Days()))
	return values
}

// DateRangeDialect speaks ?currentPage&dataPerPage&fromDate&toDate&sortBy&
// sortDirection[&searchTerm].
type DateRangeDialect struct{}

func (DateRangeDialect) Name() string { return "daterange" }

func (DateRangeDialect) Encode(q domain.QueryState, now time.Time) url.Values {
	from, to := q.DateRange.Window(now)

	values := url.Values{}
	values.Set("currentPage", strconv.Itoa(q.Page+1))
	values.Set("dataPerPage", strconv.Itoa(q.PageSize))
	values.Set("fromDate", from.Format(upstreamDateLayout))
	values.Set("toDate", to.Format(upstreamDateLayout))
	if q.SortColumn != "" {
		values.Set("sortBy", q.SortColumn)
		values.Set("sortDirection", q.SortDirection.String())
	}
	if q.Search != "" {
		values.Set("searchTerm", q.Search)
	}
	return values
}

// ParseDialect resolves a configured dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "daycount":
		return DayCountDialect{}, nil
	case "daterange":
		return DateRangeDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown upstream dialect %q", name)
	}
}
