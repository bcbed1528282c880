package service

import (
	"context"

	"aegis/internal/incident/models"
	ledgerModels "aegis/internal/ledger/models"
)

// DuplicateHashObserver raises a high-severity incident when the ledger
// rejects a repeated hash.
type DuplicateHashObserver struct {
	incidents *Service
}

func NewDuplicateHashObserver(incidents *Service) *DuplicateHashObserver {
	return &DuplicateHashObserver{incidents: incidents}
}

func (o *DuplicateHashObserver) OnDuplicateHash(ctx context.Context, hash ledgerModels.Hash, eventType string) {
	_, err := o.incidents.Raise(ctx, models.RaiseRequest{
		Message:            "duplicate ledger hash submitted for " + eventType,
		VerificationStatus: models.VerificationDuplicateHash,
		LedgerRefs:         []string{hash.String()},
	})
	if err != nil {
		o.incidents.logger.ErrorContext(ctx, "failed to raise duplicate hash incident", "error", err, "hash", hash.String())
	}
}
