package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Guest struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName string       `gorm:"not null" json:"first_name"`
	LastName  string       `gorm:"not null" json:"last_name"`
	Email     string       `json:"email,omitempty"`
	IsMember  bool         `gorm:"not null;default:false" json:"is_member"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Guest) TableName() string { return "guests" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, guest *Guest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Guest, error)
}

var ErrNotFound = errors.New("guest_not_found")
