package models

import (
	"time"

	"gorm.io/gorm"
)

// Room statuses. A room only ever moves forward through these.
const (
	StatusLobby   = "lobby"
	StatusSyncing = "syncing"
	StatusPlaying = "playing"
	StatusEnded   = "ended"
)

// Visibility controls who can discover and join a room.
const (
	VisibilityPublic         = "public"
	VisibilityPrivate        = "private"
	VisibilityPublicPassword = "public_password"
)

// Goal types (win condition families).
const (
	GoalFirstTo  = "first_to"
	GoalTimed    = "timed"
	GoalSurvival = "survival"
	GoalStreak   = "streak"
)

// Game modes. Nibble games draw 4-bit values instead of 8-bit.
const (
	ModeStandard = "standard"
	ModeNibble   = "nibble"
)

// Conversion types.
const (
	ConversionBinary = "binary"
	ConversionHex    = "hex"
	ConversionIPv4   = "ipv4"
	ConversionHextet = "hextet"
)

type Room struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	Code              string         `json:"code" gorm:"uniqueIndex;not null"`
	HostParticipantID string         `json:"host_participant_id"`
	OwnerUserID       *uint          `json:"owner_user_id"`
	HostGuestID       string         `json:"host_guest_id,omitempty"`
	Mode              string         `json:"mode" gorm:"not null;default:'standard'"`
	ConversionType    string         `json:"conversion_type" gorm:"not null"`
	GoalType          string         `json:"goal_type" gorm:"not null"`
	GoalValue         int            `json:"goal_value" gorm:"not null"`
	Lives             int            `json:"lives"` // 0 means no lives limit
	Visibility        string         `json:"visibility" gorm:"not null;default:'public'"`
	PasswordHash      string         `json:"-"`
	MaxPlayers        int            `json:"max_players" gorm:"not null;default:8"`
	ShowLeaderboard   bool           `json:"show_leaderboard" gorm:"not null;default:true"`
	Status            string         `json:"status" gorm:"not null;default:'lobby'"`
	SyncRound         int            `json:"sync_round"`
	QuestionSeed      int64          `json:"-"` // 0 means unseeded
	TournamentCode    string         `json:"tournament_code,omitempty" gorm:"index"`
	BracketIndex      int            `json:"bracket_index,omitempty"`
	StartedAt         *time.Time     `json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at"`
	LastActivityAt    time.Time      `json:"last_activity_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:RoomID"`
	Questions    []Question    `json:"questions,omitempty" gorm:"foreignKey:RoomID"`
}

// RequiresPassword reports whether joining needs a password check.
func (r *Room) RequiresPassword() bool {
	return r.Visibility == VisibilityPublicPassword
}

// Joinable reports whether the room still admits new participants.
func (r *Room) Joinable() bool {
	return r.Status == StatusLobby || r.Status == StatusSyncing
}
