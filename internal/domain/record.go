package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus is the upstream-assigned state of one batch run.
type BatchStatus string

const (
	BatchStatusSuccess BatchStatus = "Success"
	BatchStatusPending BatchStatus = "Pending"
	BatchStatusFail    BatchStatus = "Fail"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusSuccess, BatchStatusPending, BatchStatusFail:
		return true
	}
	return false
}

// BatchRecord is one upstream batch run. Records are created and mutated
// exclusively by the upstream system and are read-only here.
type BatchRecord struct {
	BatchID        int64       `json:"batchId"`
	SourceDateTime time.Time   `json:"sourceDateTime"`
	PickupDateTime *time.Time  `json:"pickupDateTime"`
	FileCount      int         `json:"fileCount"`
	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// ProcessRecord is one per-individual outcome within a batch. Status carries
// the upstream value unless an operator override shadows it.
type ProcessRecord struct {
	RecordID      int64     `json:"recordId"`
	InsertedAt    time.Time `json:"insertedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	EffectiveAt   time.Time `json:"effectiveAt"`
	SubjectID     string    `json:"subjectId"`
	ActionType    string    `json:"actionType"`
	ResultPayload string    `json:"resultPayload"`
	AgencyArea    string    `json:"agencyArea"`
	Flags         int       `json:"flags"`
	SubjectNumber string    `json:"subjectNumber"`
	Status        string    `json:"status"`
	ErrorMessage  *string   `json:"errorMessage"`
	Name          string    `json:"name"`
	ParentBatchID *int64    `json:"parentBatchId"`
}

// Decision is an operator's locally-recorded review outcome for a process record.
type Decision string

const (
	DecisionReviewed Decision = "Reviewed"
	DecisionOthers   Decision = "Others"
)

func (d Decision) String() string { return string(d) }

func (d Decision) IsValid() bool {
	switch d {
	case DecisionReviewed, DecisionOthers:
		return true
	}
	return false
}

func ParseDecisionFromString(s string) (Decision, error) {
	d := Decision(strings.TrimSpace(s))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: invalid decision %q", ErrValidation, s)
	}
	return d, nil
}

// StatusOverride shadows one process record's displayed status. At most one
// exists per record id; a later submission replaces the earlier one.
type StatusOverride struct {
	RecordID   int64     `json:"recordId"`
	Decision   Decision  `json:"status"`
	Comment    string    `json:"comment"`
	RecordedAt time.Time `json:"timestamp"`
}

func (o StatusOverride) Validate() error {
	if o.RecordID <= 0 {
		return fmt.Errorf("%w: record id is required", ErrValidation)
	}
	if !o.Decision.IsValid() {
		return fmt.Errorf("%w: invalid decision %q", ErrValidation, o.Decision)
	}
	if o.Decision == DecisionOthers && strings.TrimSpace(o.Comment) == "" {
		return fmt.Errorf("%w: comment is required when decision is %s", ErrValidation, DecisionOthers)
	}
	return nil
}
