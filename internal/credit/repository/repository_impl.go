package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindEntry(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) DeleteEntry(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Entry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, guestID snowflake.ID, cursor *pagination.Cursor, limit int) ([]domain.Entry, error) {
	stmt := db.WithContext(ctx).Where("guest_id = ?", guestID)
	if cursor != nil {
		stmt = stmt.Where("id < ?", cursor.ID)
	}
	var entries []domain.Entry
	err := stmt.Order("id desc").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *repo) SumForBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("booking_id = ?", bookingID).
		Scan(&sum).Error
	return sum, err
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Balance{GuestID: guestID}).Error
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) (int64, error) {
	return r.balance(db.WithContext(ctx), guestID)
}

func (r *repo) LockBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) (int64, error) {
	return r.balance(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), guestID)
}

func (r *repo) balance(stmt *gorm.DB, guestID snowflake.ID) (int64, error) {
	var row domain.Balance
	err := stmt.Where("guest_id = ?", guestID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.BalanceCents, nil
}

func (r *repo) Decrease(ctx context.Context, db *gorm.DB, guestID snowflake.ID, amount int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Balance{}).
		Where("guest_id = ? AND balance_cents >= ?", guestID, amount).
		Update("balance_cents", gorm.Expr("balance_cents - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Increase(ctx context.Context, db *gorm.DB, guestID snowflake.ID, amount int64) error {
	return db.WithContext(ctx).
		Model(&domain.Balance{}).
		Where("guest_id = ?", guestID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amount)).Error
}
