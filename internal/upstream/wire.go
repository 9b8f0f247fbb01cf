package upstream

import (
	"strings"
	"time"

	"github.com/kursadbilgin/hrp-console/internal/domain"
)

// The upstream is not consistent about timestamp formats across routes, so
// wire types carry timestamps as strings and parse leniently. Unparseable
// values map to the zero time rather than failing the whole page.
var upstreamTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	upstreamDateLayout,
}

func parseUpstreamTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range upstreamTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseUpstreamTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseUpstreamTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}

type batchWire struct {
	BatchID        int64   `json:"batchId"`
	SourceDateTime string  `json:"sourceDateTime"`
	PickupDateTime *string `json:"pickupDateTime"`
	FileCount      int     `json:"fileCount"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
}

func (w batchWire) toDomain() domain.BatchRecord {
	return domain.BatchRecord{
		BatchID:        w.BatchID,
		SourceDateTime: parseUpstreamTime(w.SourceDateTime),
		PickupDateTime: parseUpstreamTimePtr(w.PickupDateTime),
		FileCount:      w.FileCount,
		Status:         domain.BatchStatus(w.Status),
		CreatedAt:      parseUpstreamTime(w.CreatedAt),
		UpdatedAt:      parseUpstreamTime(w.UpdatedAt),
	}
}

type processWire struct {
	RecordID      int64   `json:"recordId"`
	InsertedAt    string  `json:"insertedAt"`
	UpdatedAt     string  `json:"updatedAt"`
	EffectiveAt   string  `json:"effectiveAt"`
	SubjectID     string  `json:"subjectId"`
	ActionType    string  `json:"actionType"`
	ResultPayload string  `json:"resultPayload"`
	AgencyArea    string  `json:"agencyArea"`
	Flags         int     `json:"flags"`
	SubjectNumber string  `json:"subjectNumber"`
	Status        string  `json:"status"`
	ErrorMessage  *string `json:"errorMessage"`
	Name          string  `json:"name"`
	ParentBatchID *int64  `json:"parentBatchId"`
}

func (w processWire) toDomain() domain.ProcessRecord {
	return domain.ProcessRecord{
		RecordID:      w.RecordID,
		InsertedAt:    parseUpstreamTime(w.InsertedAt),
		UpdatedAt:     parseUpstreamTime(w.UpdatedAt),
		EffectiveAt:   parseUpstreamTime(w.EffectiveAt),
		SubjectID:     w.SubjectID,
		ActionType:    w.ActionType,
		ResultPayload: w.ResultPayload,
		AgencyArea:    w.AgencyArea,
		Flags:         w.Flags,
		SubjectNumber: w.SubjectNumber,
		Status:        w.Status,
		ErrorMessage:  w.ErrorMessage,
		Name:          w.Name,
		ParentBatchID: w.ParentBatchID,
	}
}
