package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeConference EventType = "CONFERENCE"
	EventTypeMeetup     EventType = "MEETUP"
)

type CFPState string

const (
	CFPNotOpened CFPState = "NOT_OPENED"
	CFPOpened    CFPState = "OPENED"
	CFPFinished  CFPState = "FINISHED"
)

// Notification types an organizer can subscribe the event contact to.
const (
	NotifySubmitted = "submitted"
	NotifyConfirmed = "confirmed"
	NotifyDeclined  = "declined"
)

type Event struct {
	ID                 uuid.UUID  `json:"id"`
	Slug               string     `json:"slug"`
	Name               string     `json:"name"`
	Type               EventType  `json:"type"`
	TeamID             uuid.UUID  `json:"team_id"`
	CFPStart           *time.Time `json:"cfp_start,omitempty"`
	CFPEnd             *time.Time `json:"cfp_end,omitempty"`
	MaxProposals       *int       `json:"max_proposals,omitempty"`
	FormatsRequired    bool       `json:"formats_required"`
	CategoriesRequired bool       `json:"categories_required"`
	EmailOrganizer     *string    `json:"email_organizer,omitempty"`
	EmailNotifications []string   `json:"email_notifications"`
	SlackWebhookURL    *string    `json:"slack_webhook_url,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NotifiesOrganizer reports whether the organizer contact wants emails of the given type.
func (e *Event) NotifiesOrganizer(kind string) bool {
	if e.EmailOrganizer == nil || *e.EmailOrganizer == "" {
		return false
	}
	return slices.Contains(e.EmailNotifications, kind)
}

func (e *Event) HasSlackWebhook() bool {
	return e.SlackWebhookURL != nil && *e.SlackWebhookURL != ""
}
