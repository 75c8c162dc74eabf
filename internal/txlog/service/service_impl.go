package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/config"
	obscontext "github.com/smallbiznis/guesthouse/internal/observability/context"
	"github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config config.Config `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	recentLimit int
}

func New(p Params) domain.Logger {
	recent := p.Config.UndoRecentLimit
	if recent <= 0 {
		recent = domain.DefaultRecentLimit
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("txlog.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		recentLimit: recent,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, rec domain.Record) (domain.Entry, error) {
	if !rec.Operation.Valid() || !rec.EntityType.Valid() || rec.EntityID == 0 {
		return domain.Entry{}, domain.ErrInvalidRecord
	}
	if rec.Operation == domain.OperationCreate && rec.Before != nil {
		return domain.Entry{}, fmt.Errorf("%w: CREATE carries no before snapshot", domain.ErrInvalidRecord)
	}
	if rec.Operation == domain.OperationDelete && rec.After != nil {
		return domain.Entry{}, fmt.Errorf("%w: DELETE carries no after snapshot", domain.ErrInvalidRecord)
	}

	before, err := snapshot(rec.Before)
	if err != nil {
		return domain.Entry{}, err
	}
	after, err := snapshot(rec.After)
	if err != nil {
		return domain.Entry{}, err
	}

	entry := domain.Entry{
		ID:         s.genID.Generate(),
		Operation:  rec.Operation,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Before:     before,
		After:      after,
		Label:      strings.TrimSpace(rec.Label),
		Actor:      obscontext.ActorFromContext(ctx),
		UndoOf:     rec.UndoOf,
		CanUndo:    rec.UndoOf == nil,
		CreatedAt:  s.clock.Now(),
	}
	if entry.Label == "" {
		entry.Label = fmt.Sprintf("%s %s", strings.ToLower(string(rec.Operation)), rec.EntityType)
	}

	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		return domain.Entry{}, db.Wrap("txlog.insert", err)
	}
	// Only the newest entry of an entity may be undone; older snapshots no
	// longer describe the row.
	if err := s.repo.DisableOlder(ctx, tx, rec.EntityType, []snowflake.ID{rec.EntityID}, entry.ID); err != nil {
		return domain.Entry{}, db.Wrap("txlog.supersede", err)
	}

	s.log.Debug("transaction recorded",
		zap.String("operation", string(entry.Operation)),
		zap.String("entity_type", string(entry.EntityType)),
		zap.Int64("entity_id", entry.EntityID.Int64()),
		zap.Int64("entry_id", entry.ID.Int64()),
	)
	return entry, nil
}

func (s *Service) Supersede(ctx context.Context, tx *gorm.DB, entityType domain.EntityType, ids []snowflake.ID) error {
	if err := s.repo.DisableOlder(ctx, tx, entityType, ids, 0); err != nil {
		return db.Wrap("txlog.supersede", err)
	}
	return nil
}

func (s *Service) MarkConsumed(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	ok, err := s.repo.Consume(ctx, tx, id)
	if err != nil {
		return db.Wrap("txlog.consume", err)
	}
	if !ok {
		return domain.ErrAlreadyUndone
	}
	return nil
}

func (s *Service) Undone(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error) {
	ok, err := s.repo.HasCompensation(ctx, tx, id)
	if err != nil {
		return false, db.Wrap("txlog.undone", err)
	}
	return ok, nil
}

func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Entry, error) {
	entry, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		return domain.Entry{}, db.Wrap("txlog.lock", err)
	}
	if entry == nil {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return *entry, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Entry, error) {
	entry, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Entry{}, db.Wrap("txlog.get", err)
	}
	if entry == nil {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return *entry, nil
}

// ListRecent returns undoable entries, newest first. A limit of zero or less
// means the configured default; larger limits stop at MaxRecentLimit.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	if limit > domain.MaxRecentLimit {
		limit = domain.MaxRecentLimit
	}
	entries, err := s.repo.ListUndoable(ctx, s.db, limit)
	if err != nil {
		return nil, db.Wrap("txlog.list_recent", err)
	}
	return entries, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	var cursor *pagination.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, err
		}
		cursor = decoded
	}

	entries, err := s.repo.List(ctx, s.db, domain.ListFilter{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		OnlyUndo:   req.OnlyUndo,
	}, cursor, limit+1)
	if err != nil {
		return domain.ListResponse{}, db.Wrap("txlog.list", err)
	}

	entries, info := pagination.BuildCursorPageInfo(entries, limit, func(e domain.Entry) int64 {
		return e.ID.Int64()
	})
	return domain.ListResponse{PageInfo: info, Entries: entries}, nil
}

func snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(datatypes.JSON); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}
	return datatypes.JSON(b), nil
}
