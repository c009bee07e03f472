package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant roles.
const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

type Participant struct {
	ID            string         `json:"id" gorm:"primaryKey"` // uuid, unguessable
	RoomID        uint           `json:"room_id" gorm:"index;not null"`
	UserID        *uint          `json:"user_id"`
	GuestID       string         `json:"guest_id,omitempty"`
	DisplayName   string         `json:"display_name" gorm:"not null"`
	Role          string         `json:"role" gorm:"not null;default:'player'"`
	Score         int            `json:"score" gorm:"not null;default:0"`
	QuestionIndex int            `json:"question_index" gorm:"not null;default:0"`
	Lives         int            `json:"lives"`
	Streak        int            `json:"streak"`
	JoinedAt      time.Time      `json:"joined_at"`
	LeftAt        *time.Time     `json:"left_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsGuest reports whether the participant joined without an account.
func (p *Participant) IsGuest() bool {
	return p.UserID == nil
}

// Active reports whether the participant has not left the room.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}
