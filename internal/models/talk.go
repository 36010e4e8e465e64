package models

import (
	"time"

	"github.com/google/uuid"
)

type TalkLevel string

const (
	LevelBeginner     TalkLevel = "BEGINNER"
	LevelIntermediate TalkLevel = "INTERMEDIATE"
	LevelAdvanced     TalkLevel = "ADVANCED"
)

type Talk struct {
	ID         uuid.UUID   `json:"id"`
	CreatorID  uuid.UUID   `json:"creator_id"`
	Title      string      `json:"title"`
	Abstract   string      `json:"abstract"`
	Level      *TalkLevel  `json:"level,omitempty"`
	References *string     `json:"references,omitempty"`
	Languages  []string    `json:"languages"`
	Archived   bool        `json:"archived"`
	Speakers   []uuid.UUID `json:"speakers"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TalkData is the speaker-editable content of a talk, copied onto proposals.
type TalkData struct {
	Title      string     `json:"title"`
	Abstract   string     `json:"abstract"`
	Level      *TalkLevel `json:"level,omitempty"`
	References *string    `json:"references,omitempty"`
	Languages  []string   `json:"languages"`
}
