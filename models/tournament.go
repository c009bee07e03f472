package models

import (
	"time"

	"gorm.io/gorm"
)

// Tournament statuses.
const (
	TournamentLobby   = "lobby"
	TournamentStarted = "started"
	TournamentEnded   = "ended"
)

// Tournament statically partitions entrants across fixed-size brackets
// bucketed by arrival order. Each bracket is backed by its own Room with
// a seeded question sequence, so brackets progress and end independently.
type Tournament struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	Code             string         `json:"code" gorm:"uniqueIndex;not null"`
	Name             string         `json:"name" gorm:"not null"`
	CreatorUserID    uint           `json:"creator_user_id" gorm:"not null"`
	BracketSize      int            `json:"bracket_size" gorm:"not null"`
	MaxParticipants  int            `json:"max_participants" gorm:"not null"`
	ParticipantCount int            `json:"participant_count" gorm:"not null;default:0"`
	Mode             string         `json:"mode" gorm:"not null;default:'standard'"`
	ConversionType   string         `json:"conversion_type" gorm:"not null"`
	GoalType         string         `json:"goal_type" gorm:"not null"`
	GoalValue        int            `json:"goal_value" gorm:"not null"`
	Lives            int            `json:"lives"`
	Status           string         `json:"status" gorm:"not null;default:'lobby'"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Brackets []Bracket `json:"brackets,omitempty" gorm:"foreignKey:TournamentID"`
}

type Bracket struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TournamentID uint           `json:"tournament_id" gorm:"index;not null"`
	Index        int            `json:"index" gorm:"not null"`
	RoomID       uint           `json:"room_id" gorm:"not null"`
	RoomCode     string         `json:"room_code" gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}
