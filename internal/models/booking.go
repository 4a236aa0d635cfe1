package models

import "time"

// BookingRecord is the local ledger row written after a booking is created
// in the calendar backend.
type BookingRecord struct {
	EventID   string `gorm:"primaryKey"`
	Summary   string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}
