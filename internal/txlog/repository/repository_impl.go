package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	var entry domain.Entry
	err := stmt.Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) DisableOlder(ctx context.Context, db *gorm.DB, entityType domain.EntityType, entityIDs []snowflake.ID, before snowflake.ID) error {
	if len(entityIDs) == 0 {
		return nil
	}
	stmt := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("entity_type = ? AND entity_id IN ? AND can_undo = ?", entityType, entityIDs, true)
	if before != 0 {
		stmt = stmt.Where("id < ?", before)
	}
	return stmt.Update("can_undo", false).Error
}

func (r *repo) Consume(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("id = ? AND can_undo = ?", id, true).
		Update("can_undo", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) HasCompensation(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("undo_of = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListUndoable(ctx context.Context, db *gorm.DB, limit int) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := db.WithContext(ctx).
		Where("can_undo = ?", true).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, cursor *pagination.Cursor, limit int) ([]domain.Entry, error) {
	stmt := db.WithContext(ctx).Model(&domain.Entry{})
	if filter.EntityType != "" {
		stmt = stmt.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != 0 {
		stmt = stmt.Where("entity_id = ?", filter.EntityID)
	}
	if filter.OnlyUndo {
		stmt = stmt.Where("can_undo = ?", true)
	}
	if cursor != nil {
		stmt = stmt.Where("id < ?", cursor.ID)
	}

	var entries []domain.Entry
	err := stmt.Order("id desc").Limit(limit).Find(&entries).Error
	return entries, err
}
