package models

import (
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TeamMember struct {
	TeamID    uuid.UUID `json:"team_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      TeamRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type TeamRole string

const (
	RoleOwner    TeamRole = "OWNER"
	RoleMember   TeamRole = "MEMBER"
	RoleReviewer TeamRole = "REVIEWER"
)

// OrganizerRoles may take decisions and run campaigns.
var OrganizerRoles = []TeamRole{RoleOwner, RoleMember}

// AllRoles may read an event's proposals.
var AllRoles = []TeamRole{RoleOwner, RoleMember, RoleReviewer}
