package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecordKind selects which upstream collection a query targets.
type RecordKind string

const (
	KindBatch   RecordKind = "BATCH"
	KindProcess RecordKind = "PROCESS"
)

func (k RecordKind) String() string { return string(k) }

func (k RecordKind) IsValid() bool {
	switch k {
	case KindBatch, KindProcess:
		return true
	}
	return false
}

// SortDirection orders a sorted column.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func (d SortDirection) String() string { return string(d) }

func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

func ParseSortDirectionFromString(s string) (SortDirection, error) {
	d := SortDirection(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: invalid sort direction %q", ErrValidation, s)
	}
	return d, nil
}

// DateRange is a named lookback window. Values are case-sensitive because
// they come verbatim from the UI's dropdown options.
type DateRange string

const (
	RangeLast7Days   DateRange = "Last 7 days"
	RangeLast30Days  DateRange = "Last 30 days"
	RangeLast3Months DateRange = "Last 3 months"
	RangeLast6Months DateRange = "Last 6 months"
	RangeLast1Year   DateRange = "Last 1 year"

	DefaultDateRange = RangeLast7Days
)

func (r DateRange) String() string { return string(r) }

func (r DateRange) IsValid() bool {
	switch r {
	case RangeLast7Days, RangeLast30Days, RangeLast3Months, RangeLast6Months, RangeLast1Year:
		return true
	}
	return false
}

// Days returns the lookback window in days. Unknown ranges fall back to the
// default 7-day window rather than failing, matching the UI's behavior for
// an unset dropdown.
func (r DateRange) Days() int {
	switch r {
	case RangeLast30Days:
		return 30
	case RangeLast3Months:
		return 90
	case RangeLast6Months:
		return 180
	case RangeLast1Year:
		return 365
	default:
		return 7
	}
}

// Window resolves the range to an explicit (from, to] pair ending at now.
func (r DateRange) Window(now time.Time) (time.Time, time.Time) {
	return now.AddDate(0, 0, -r.Days()), now
}

// QueryState is the complete set of view parameters for one record kind.
// Page is 0-based; the upstream speaks 1-based pages and the gateway
// converts.
type QueryState struct {
	Kind          RecordKind
	Page          int
	PageSize      int
	DateRange     DateRange
	SortColumn    string
	SortDirection SortDirection
	Search        string

	// Anchor filters scope the process view to one batch row. Only attached
	// upstream when set.
	AnchorBatchID *int64
	AnchorDate    string
}

// Normalize fills unset fields with defaults and clamps obviously broken
// values so the gateway never issues a nonsense query.
func (q QueryState) Normalize() QueryState {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.PageSize < 1 {
		q.PageSize = 50
	}
	if !q.DateRange.IsValid() {
		q.DateRange = DefaultDateRange
	}
	if !q.SortDirection.IsValid() {
		q.SortDirection = SortDesc
	}
	return q
}

// SameExceptPage reports whether other differs from q only in Page. The
// orchestrator uses this to implement the page-reset rule: any other change
// snaps the view back to the first page.
func (q QueryState) SameExceptPage(other QueryState) bool {
	a, b := q, other
	a.Page, b.Page = 0, 0
	if (a.AnchorBatchID == nil) != (b.AnchorBatchID == nil) {
		return false
	}
	if a.AnchorBatchID != nil && *a.AnchorBatchID != *b.AnchorBatchID {
		return false
	}
	a.AnchorBatchID, b.AnchorBatchID = nil, nil
	return a == b
}

// PageResult is the only shape exposed to the presentation layer.
type PageResult[T any] struct {
	Items      []T
	TotalCount int
	Page       int
	PageSize   int

	// ApproxTotal flags a total derived as totalPage*dataPerPage when the
	// upstream omitted totalRecords. It can overstate the count on the last
	// page and callers must treat it as lower-confidence.
	ApproxTotal bool
}
