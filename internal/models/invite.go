package models

import (
	"time"

	"github.com/google/uuid"
)

type InviteEntity string

const (
	InviteTalk     InviteEntity = "TALK"
	InviteProposal InviteEntity = "PROPOSAL"
	InviteTeam     InviteEntity = "TEAM"
)

type Invite struct {
	ID         uuid.UUID  `json:"id"`
	TalkID     *uuid.UUID `json:"talk_id,omitempty"`
	ProposalID *uuid.UUID `json:"proposal_id,omitempty"`
	TeamID     *uuid.UUID `json:"team_id,omitempty"`
	InvitedBy  uuid.UUID  `json:"invited_by"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Joined is what the request layer needs to redirect a user after accepting an invite.
type Joined struct {
	Entity     InviteEntity `json:"entity"`
	TalkID     *uuid.UUID   `json:"talk_id,omitempty"`
	ProposalID *uuid.UUID   `json:"proposal_id,omitempty"`
	EventSlug  string       `json:"event_slug,omitempty"`
	TeamSlug   string       `json:"team_slug,omitempty"`
	Title      string       `json:"title,omitempty"`
}
