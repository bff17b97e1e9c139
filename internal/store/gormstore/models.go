package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Train mirrors the trains table. available_seats is the seat ledger column.
type Train struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Name           string    `gorm:"not null"`
	Source         string    `gorm:"not null;index:idx_trains_route,priority:1"`
	Destination    string    `gorm:"not null;index:idx_trains_route,priority:2"`
	TotalSeats     int64     `gorm:"not null;check:chk_trains_total_seats,total_seats > 0"`
	AvailableSeats int64     `gorm:"not null;check:chk_trains_available_seats,available_seats >= 0 AND available_seats <= total_seats"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Train) TableName() string { return "trains" }

// Booking mirrors the append-only bookings table.
type Booking struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	UserID    int64          `gorm:"not null;index:idx_bookings_user"`
	TrainID   int64          `gorm:"not null;index:idx_bookings_train"`
	Train     Train          `gorm:"foreignKey:TrainID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
	Metadata  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// User mirrors the users table owned by the auth collaborator.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"not null;uniqueIndex:uniq_users_email"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{&Train{}, &Booking{}, &User{}}
}
