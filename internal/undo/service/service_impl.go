package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/events"
	"github.com/smallbiznis/guesthouse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	"github.com/smallbiznis/guesthouse/internal/observability/tracing"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/internal/undo/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const undoLabelPrefix = "Undo: "

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Tx         *db.Transactor
	TxLog      txlogdomain.Logger
	Reverters  []domain.Reverter    `group:"reverters"`
	Publisher  events.Publisher     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	tx         *db.Transactor
	txlog      txlogdomain.Logger
	reverters  map[txlogdomain.EntityType]domain.Reverter
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Executor {
	reverters := make(map[txlogdomain.EntityType]domain.Reverter, len(p.Reverters))
	for _, r := range p.Reverters {
		if r == nil {
			continue
		}
		reverters[r.EntityType()] = r
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("undo.service"),
		tx:         p.Tx,
		txlog:      p.TxLog,
		reverters:  reverters,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// Undo reverses one logged mutation. The entry is consumed before the
// compensating records are written, all in one transaction: a failed
// reversal rolls back and leaves the entry undoable, and a concurrent second
// undo of the same entry finds it consumed.
func (s *Service) Undo(ctx context.Context, id snowflake.ID) (domain.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "undo.execute", attribute.Int64("transaction_id", id.Int64()))
	defer span.End()

	var (
		result   domain.Result
		reversal domain.Reversal
	)
	err := s.tx.Transaction(ctx, s.db, "undo.execute", func(tx *gorm.DB) error {
		entry, err := s.txlog.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !entry.CanUndo {
			return s.closed(ctx, tx, entry)
		}
		reverter, ok := s.reverters[entry.EntityType]
		if !ok {
			return fmt.Errorf("%s entries: %w", entry.EntityType, txlogdomain.ErrUndoNotSupported)
		}

		if err := s.txlog.MarkConsumed(ctx, tx, entry.ID); err != nil {
			return err
		}
		reversal, err = reverter.Revert(ctx, tx, entry)
		if err != nil {
			return err
		}

		compensations := make([]txlogdomain.Entry, 0, len(reversal.Records))
		for _, rec := range reversal.Records {
			undoOf := entry.ID
			rec.UndoOf = &undoOf
			if strings.TrimSpace(rec.Label) == "" {
				rec.Label = undoLabelPrefix + entry.Label
			}
			written, err := s.txlog.Record(ctx, tx, rec)
			if err != nil {
				return err
			}
			compensations = append(compensations, written)
		}

		entry.CanUndo = false
		result = domain.Result{Entry: entry, Compensations: compensations}
		return nil
	})

	entityType := string(result.Entry.EntityType)
	if err != nil {
		s.obsMetrics.RecordUndo(ctx, entityType, outcome(err))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "undo failed")
		logger.WithEntry(logger.WithContext(ctx, s.log), id, entityType).Info("undo rejected", zap.Error(err))
		return domain.Result{}, err
	}

	s.obsMetrics.RecordUndo(ctx, entityType, "applied")
	if s.publisher != nil && len(reversal.Changes) > 0 {
		s.publisher.Publish(ctx, reversal.Changes...)
	}
	logger.WithEntry(logger.WithContext(ctx, s.log), id, entityType).Info("transaction undone",
		zap.Int64("entity_id", result.Entry.EntityID.Int64()),
		zap.String("operation", string(result.Entry.Operation)),
	)
	return result, nil
}

// closed explains why an entry is no longer undoable.
func (s *Service) closed(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) error {
	if entry.UndoOf != nil {
		return fmt.Errorf("compensating entries: %w", txlogdomain.ErrUndoNotSupported)
	}
	undone, err := s.txlog.Undone(ctx, tx, entry.ID)
	if err != nil {
		return err
	}
	if undone {
		return txlogdomain.ErrAlreadyUndone
	}
	return domain.Conflictf("%s %d changed after this entry was recorded", entry.EntityType, entry.EntityID.Int64())
}

func outcome(err error) string {
	switch {
	case errors.Is(err, txlogdomain.ErrUndoConflict):
		return "conflict"
	case errors.Is(err, txlogdomain.ErrAlreadyUndone):
		return "already_undone"
	case errors.Is(err, txlogdomain.ErrEntryNotFound):
		return "not_found"
	case errors.Is(err, txlogdomain.ErrUndoNotSupported):
		return "not_supported"
	default:
		return "error"
	}
}
