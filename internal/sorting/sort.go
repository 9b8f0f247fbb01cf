// Package sorting reorders upstream pages client-side. The upstream's own
// ordering is not always applied or correct, so the engine runs on top of
// whatever order a page arrived in, not only when the upstream omits one.
package sorting

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kursadbilgin/hrp-console/internal/domain"
)

// BatchRecords returns a sorted copy of items. The input is never mutated
// and equal keys keep their arrival order.
func BatchRecords(items []domain.BatchRecord, column string, direction domain.SortDirection) []domain.BatchRecord {
	key, ok := batchColumns[column]
	if !ok {
		return slices.Clone(items)
	}
	return applySort(items, key, isDateColumn(column), direction)
}

// ProcessRecords returns a sorted copy of items, same contract as
// BatchRecords.
func ProcessRecords(items []domain.ProcessRecord, column string, direction domain.SortDirection) []domain.ProcessRecord {
	key, ok := processColumns[column]
	if !ok {
		return slices.Clone(items)
	}
	return applySort(items, key, isDateColumn(column), direction)
}

var batchColumns = map[string]func(domain.BatchRecord) any{
	"batchId":        func(r domain.BatchRecord) any { return r.BatchID },
	"sourceDateTime": func(r domain.BatchRecord) any { return r.SourceDateTime },
	"pickupDateTime": func(r domain.BatchRecord) any { return r.PickupDateTime },
	"fileCount":      func(r domain.BatchRecord) any { return r.FileCount },
	"status":         func(r domain.BatchRecord) any { return string(r.Status) },
	"createdAt":      func(r domain.BatchRecord) any { return r.CreatedAt },
	"updatedAt":      func(r domain.BatchRecord) any { return r.UpdatedAt },
}

var processColumns = map[string]func(domain.ProcessRecord) any{
	"recordId":      func(r domain.ProcessRecord) any { return r.RecordID },
	"insertedAt":    func(r domain.ProcessRecord) any { return r.InsertedAt },
	"updatedAt":     func(r domain.ProcessRecord) any { return r.UpdatedAt },
	"effectiveAt":   func(r domain.ProcessRecord) any { return r.EffectiveAt },
	"subjectId":     func(r domain.ProcessRecord) any { return r.SubjectID },
	"actionType":    func(r domain.ProcessRecord) any { return r.ActionType },
	"agencyArea":    func(r domain.ProcessRecord) any { return r.AgencyArea },
	"flags":         func(r domain.ProcessRecord) any { return r.Flags },
	"subjectNumber": func(r domain.ProcessRecord) any { return r.SubjectNumber },
	"status":        func(r domain.ProcessRecord) any { return r.Status },
	"errorMessage":  func(r domain.ProcessRecord) any { return r.ErrorMessage },
	"name":          func(r domain.ProcessRecord) any { return r.Name },
	"parentBatchId": func(r domain.ProcessRecord) any { return r.ParentBatchID },
}

var dateColumns = map[string]struct{}{
	"sourceDateTime": {},
	"pickupDateTime": {},
	"createdAt":      {},
	"updatedAt":      {},
	"insertedAt":     {},
	"effectiveAt":    {},
}

func isDateColumn(column string) bool {
	_, ok := dateColumns[column]
	return ok
}

func applySort[T any](items []T, key func(T) any, dateColumn bool, direction domain.SortDirection) []T {
	sorted := slices.Clone(items)

	// Collators are not safe for concurrent use, so build one per call.
	col := collate.New(language.Und, collate.IgnoreCase)

	slices.SortStableFunc(sorted, func(a, b T) int {
		cmp := compareValues(key(a), key(b), dateColumn, col)
		if direction == domain.SortDesc {
			return -cmp
		}
		return cmp
	})
	return sorted
}

// compareValues orders two column values ascending. Date columns compare as
// timestamps with missing/unparseable values treated as earliest; values
// that are both numeric compare numerically; everything else falls back to
// case-insensitive locale-aware string comparison with nil as "".
func compareValues(a, b any, dateColumn bool, col *collate.Collator) int {
	if dateColumn {
		at, bt := timeValue(a), timeValue(b)
		return at.Compare(bt)
	}

	if an, aok := numberValue(a); aok {
		if bn, bok := numberValue(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}

	return col.CompareString(stringValue(a), stringValue(b))
}

// timeValue normalizes a date-like value; the zero time stands in for
// missing or unparseable dates so they sort first ascending.
func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return *t
	case string:
		return parseLooseTime(t)
	case *string:
		if t == nil {
			return time.Time{}
		}
		return parseLooseTime(*t)
	default:
		return time.Time{}
	}
}

var looseTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseLooseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range looseTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case *int64:
		if n == nil {
			return 0, false
		}
		return float64(*n), true
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case *int64:
		if s == nil {
			return ""
		}
		return strconv.FormatInt(*s, 10)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}
