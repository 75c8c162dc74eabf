package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/availability/domain"
	"gorm.io/gorm"
)

const (
	bookingsTable   = "bookings"
	statusCancelled = "cancelled"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Overlapping(ctx context.Context, db *gorm.DB, req domain.Request) ([]snowflake.ID, error) {
	stmt := db.WithContext(ctx).
		Table(bookingsTable).
		Where("room_id = ?", req.RoomID).
		Where("status <> ?", statusCancelled).
		Where("checkin_date < ? AND checkout_date > ?", req.CheckOut, req.CheckIn)
	if req.ExcludeBookingID != 0 {
		stmt = stmt.Where("id <> ?", req.ExcludeBookingID)
	}

	var ids []snowflake.ID
	err := stmt.Order("checkin_date asc").Pluck("id", &ids).Error
	return ids, err
}
