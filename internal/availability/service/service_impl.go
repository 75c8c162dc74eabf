package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/guesthouse/internal/availability/domain"
	"github.com/smallbiznis/guesthouse/internal/cache"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const previewTTL = 2 * time.Minute

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	RoomRepo   roomdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	roomRepo   roomdomain.Repository
	obsMetrics *obsmetrics.Metrics
	previews   cache.Cache[domain.Request, domain.Result]
}

func New(p Params) domain.Checker {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("availability.service"),
		repo:       p.Repo,
		roomRepo:   p.RoomRepo,
		obsMetrics: p.ObsMetrics,
		previews:   cache.NewTTLCache[domain.Request, domain.Result](),
	}
}

func (s *Service) Check(ctx context.Context, req domain.Request) (domain.Result, error) {
	req, err := normalize(req)
	if err != nil {
		return domain.Result{}, err
	}

	ids, err := s.repo.Overlapping(ctx, s.db, req)
	if err != nil {
		wrapped := db.Wrap("availability.check", err)
		if cached, ok := s.previews.Get(req); ok {
			s.log.Warn("serving cached availability", zap.Error(err))
			cached.Stale = true
			return cached, nil
		}
		return domain.Result{}, wrapped
	}

	result := domain.Result{Available: len(ids) == 0, Conflicts: ids}
	s.previews.Set(req, result, previewTTL)
	return result, nil
}

func (s *Service) Guard(ctx context.Context, tx *gorm.DB, req domain.Request) error {
	req, err := normalize(req)
	if err != nil {
		return err
	}

	room, err := s.roomRepo.LockByID(ctx, tx, req.RoomID)
	if err != nil {
		return db.Wrap("availability.lock_room", err)
	}
	if room == nil {
		return roomdomain.ErrNotFound
	}

	ids, err := s.repo.Overlapping(ctx, tx, req)
	if err != nil {
		return db.Wrap("availability.guard", err)
	}
	if len(ids) > 0 {
		s.obsMetrics.RecordAvailabilityConflict(ctx, "guard")
		return fmt.Errorf("room %d overlaps booking %d: %w", req.RoomID.Int64(), ids[0].Int64(), domain.ErrAvailabilityConflict)
	}
	return nil
}

func normalize(req domain.Request) (domain.Request, error) {
	if req.RoomID == 0 {
		return req, domain.ErrInvalidRoom
	}
	req.CheckIn = dateOnly(req.CheckIn)
	req.CheckOut = dateOnly(req.CheckOut)
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() || !req.CheckOut.After(req.CheckIn) {
		return req, domain.ErrInvalidRange
	}
	return req, nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
