package models

import (
	"time"

	"gorm.io/gorm"
)

// Question is an immutable value/answer pair. The sequence is generated
// once per room when the synchronized start finishes and is shared by
// every player in that room.
type Question struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	RoomID    uint           `json:"room_id" gorm:"index;not null"`
	Index     int            `json:"index" gorm:"not null"`
	Value     string         `json:"value" gorm:"not null"`
	Answer    string         `json:"-" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
