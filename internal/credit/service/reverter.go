package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/events"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	undodomain "github.com/smallbiznis/guesthouse/internal/undo/domain"
	"gorm.io/gorm"
)

type reverter struct {
	ledger domain.Ledger
}

// NewReverter undoes credit entries. Undoing a debit gives the amount back;
// undoing a top-up takes it away again through the same non-negative guard
// as a debit.
func NewReverter(ledger domain.Ledger) undodomain.Reverter {
	return &reverter{ledger: ledger}
}

func (r *reverter) EntityType() txlogdomain.EntityType {
	return txlogdomain.EntityCreditEntry
}

func (r *reverter) Revert(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	if entry.Operation != txlogdomain.OperationCreate {
		return undodomain.Reversal{}, txlogdomain.ErrUndoNotSupported
	}

	reversed, err := r.ledger.Reverse(ctx, tx, entry.EntityID)
	switch {
	case errors.Is(err, domain.ErrEntryNotFound), errors.Is(err, domain.ErrInsufficientCredit):
		return undodomain.Reversal{}, undodomain.Conflict(err)
	case err != nil:
		return undodomain.Reversal{}, err
	}

	changes := []events.Change{events.CreditEntryChanged(reversed.ID, txlogdomain.OperationDelete)}
	if reversed.BookingID != nil {
		changes = append(changes, events.BookingChanged(*reversed.BookingID, txlogdomain.OperationUpdate))
	}
	return undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationDelete,
			EntityType: txlogdomain.EntityCreditEntry,
			EntityID:   reversed.ID,
			Before:     reversed,
		}},
		Changes: changes,
	}, nil
}
