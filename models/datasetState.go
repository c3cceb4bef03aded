package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDatasetClaimLost means the PROCESSING lease moved to another worker before this
// one finished, so its result must not be written.
var ErrDatasetClaimLost = errors.New("dataset claim lost")

// DatasetState is the lifecycle of a dataset as a closed set of values. Transitions
// are methods on the source state, so only PENDING -> PROCESSING -> COMPLETED|FAILED
// can be expressed.
type DatasetState interface {
	Status() DatasetStatus
	isDatasetState()
}

type StatePending struct{}

type StateProcessing struct {
	ClaimedAt time.Time
	ClaimedBy string
}

type StateCompleted struct {
	RecordCount int
	ProcessedAt time.Time
}

type StateFailed struct{}

func (StatePending) Status() DatasetStatus    { return DatasetStatusPending }
func (StateProcessing) Status() DatasetStatus { return DatasetStatusProcessing }
func (StateCompleted) Status() DatasetStatus  { return DatasetStatusCompleted }
func (StateFailed) Status() DatasetStatus     { return DatasetStatusFailed }

func (StatePending) isDatasetState()    {}
func (StateProcessing) isDatasetState() {}
func (StateCompleted) isDatasetState()  {}
func (StateFailed) isDatasetState()     {}

func (StatePending) Start(at time.Time, workerID string) StateProcessing {
	return StateProcessing{ClaimedAt: at, ClaimedBy: workerID}
}

// Reclaim hands a stale PROCESSING lease to another worker.
func (StateProcessing) Reclaim(at time.Time, workerID string) StateProcessing {
	return StateProcessing{ClaimedAt: at, ClaimedBy: workerID}
}

func (StateProcessing) Complete(recordCount int, at time.Time) StateCompleted {
	return StateCompleted{RecordCount: recordCount, ProcessedAt: at}
}

func (StateProcessing) Fail() StateFailed {
	return StateFailed{}
}

// State decodes the status columns.
func (d *Dataset) State() (DatasetState, error) {
	switch d.Status {
	case DatasetStatusPending:
		return StatePending{}, nil
	case DatasetStatusProcessing:
		s := StateProcessing{}
		if d.ClaimedAt != nil {
			s.ClaimedAt = *d.ClaimedAt
		}
		if d.ClaimedBy != nil {
			s.ClaimedBy = *d.ClaimedBy
		}
		return s, nil
	case DatasetStatusCompleted:
		if d.RecordCount == nil || d.ProcessedAt == nil {
			return nil, fmt.Errorf("dataset %d is COMPLETED without record count or processed time", d.ID)
		}
		return StateCompleted{RecordCount: *d.RecordCount, ProcessedAt: *d.ProcessedAt}, nil
	case DatasetStatusFailed:
		return StateFailed{}, nil
	default:
		return nil, fmt.Errorf("dataset %d has unknown status %q", d.ID, d.Status)
	}
}

// ApplyState encodes s into the status columns. RecordCount and ProcessedAt are only
// set for COMPLETED.
func (d *Dataset) ApplyState(s DatasetState) {
	cols := stateColumns(s)
	d.Status = cols["status"].(DatasetStatus)
	d.RecordCount, _ = cols["record_count"].(*int)
	d.ProcessedAt, _ = cols["processed_at"].(*time.Time)
	if _, ok := cols["claimed_at"]; ok {
		d.ClaimedAt, _ = cols["claimed_at"].(*time.Time)
		d.ClaimedBy, _ = cols["claimed_by"].(*string)
	}
}

func stateColumns(s DatasetState) map[string]interface{} {
	cols := map[string]interface{}{
		"status":       s.Status(),
		"record_count": nil,
		"processed_at": nil,
	}
	switch v := s.(type) {
	case StatePending:
		cols["claimed_at"] = nil
		cols["claimed_by"] = nil
	case StateProcessing:
		at, by := v.ClaimedAt, v.ClaimedBy
		cols["claimed_at"] = &at
		cols["claimed_by"] = &by
	case StateCompleted:
		count, at := v.RecordCount, v.ProcessedAt
		cols["record_count"] = &count
		cols["processed_at"] = &at
	}
	return cols
}

// ClaimDataset moves the dataset to the given PROCESSING state if it is PENDING, or if
// it is PROCESSING under a claim taken before staleBefore. It reports whether this
// caller now holds the claim.
func ClaimDataset(ctx context.Context, db *gorm.DB, id int, claim StateProcessing, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&Dataset{}).
		Where("id = ?", id).
		Where("(status = ?) OR (status = ? AND (claimed_at IS NULL OR claimed_at < ?))",
			DatasetStatusPending, DatasetStatusProcessing, staleBefore).
		Updates(stateColumns(claim))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteDataset records the outcome of a successful run. It must run inside the
// transaction that inserted the records.
func CompleteDataset(ctx context.Context, tx *gorm.DB, id int, from StateProcessing, recordCount int, at time.Time) error {
	return transitionFrom(ctx, tx, id, from, from.Complete(recordCount, at))
}

func FailDataset(ctx context.Context, db *gorm.DB, id int, from StateProcessing) error {
	return transitionFrom(ctx, db, id, from, from.Fail())
}

func transitionFrom(ctx context.Context, db *gorm.DB, id int, from StateProcessing, to DatasetState) error {
	cols := stateColumns(to)
	res := db.WithContext(ctx).Model(&Dataset{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, DatasetStatusProcessing, from.ClaimedBy).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: dataset %d", ErrDatasetClaimLost, id)
	}
	return nil
}
