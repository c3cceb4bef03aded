package workflow

import (
	"context"
	"time"

	"github.com/sharmarakshya7/financial-rating-platform/models"
	"gorm.io/gorm"
)

type claimOutcome int

const (
	claimAcquired claimOutcome = iota
	// COMPLETED or FAILED: redelivery is acknowledged without work.
	claimTerminal
	// PROCESSING under a live claim held by someone else.
	claimBusy
)

// claimDataset makes a redelivered job idempotent: only the caller that moves the
// dataset into PROCESSING (or takes over a stale claim) gets to run it.
func claimDataset(ctx context.Context, db *gorm.DB, dataset *models.Dataset, workerID string, now time.Time, staleAfter time.Duration) (models.StateProcessing, claimOutcome, error) {
	state, err := dataset.State()
	if err != nil {
		return models.StateProcessing{}, claimBusy, err
	}

	var claim models.StateProcessing
	switch s := state.(type) {
	case models.StatePending:
		claim = s.Start(now, workerID)
	case models.StateProcessing:
		if !s.ClaimedAt.IsZero() && s.ClaimedAt.After(now.Add(-staleAfter)) {
			return models.StateProcessing{}, claimBusy, nil
		}
		claim = s.Reclaim(now, workerID)
	default:
		return models.StateProcessing{}, claimTerminal, nil
	}

	ok, err := models.ClaimDataset(ctx, db, dataset.ID, claim, now.Add(-staleAfter))
	if err != nil {
		return models.StateProcessing{}, claimBusy, err
	}
	if ok {
		return claim, claimAcquired, nil
	}

	// lost a race; report what the winner left behind
	current, err := models.FindDatasetById(ctx, db, dataset.ID)
	if err != nil {
		return models.StateProcessing{}, claimBusy, err
	}
	if current.Status.IsTerminal() {
		return models.StateProcessing{}, claimTerminal, nil
	}
	return models.StateProcessing{}, claimBusy, nil
}
