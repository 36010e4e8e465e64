package models

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	StatusDraft     ProposalStatus = "DRAFT"
	StatusSubmitted ProposalStatus = "SUBMITTED"
	StatusAccepted  ProposalStatus = "ACCEPTED"
	StatusRejected  ProposalStatus = "REJECTED"
	StatusConfirmed ProposalStatus = "CONFIRMED"
	StatusDeclined  ProposalStatus = "DECLINED"
)

// IsLive reports whether the proposal can still change hands between speakers,
// i.e. it is not rejected and the speakers have not answered yet.
func (s ProposalStatus) IsLive() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusAccepted:
		return true
	}
	return false
}

// Values of email_accepted_status / email_rejected_status.
type EmailStatus string

const (
	EmailPending EmailStatus = "PENDING"
	EmailSent    EmailStatus = "SENT"
)

type Proposal struct {
	ID                  uuid.UUID      `json:"id"`
	TalkID              *uuid.UUID     `json:"talk_id,omitempty"`
	EventID             uuid.UUID      `json:"event_id"`
	Title               string         `json:"title"`
	Abstract            string         `json:"abstract"`
	Level               *TalkLevel     `json:"level,omitempty"`
	References          *string        `json:"references,omitempty"`
	Languages           []string       `json:"languages"`
	Status              ProposalStatus `json:"status"`
	Comments            *string        `json:"comments,omitempty"`
	Formats             []uuid.UUID    `json:"formats"`
	Categories          []uuid.UUID    `json:"categories"`
	EmailAcceptedStatus *EmailStatus   `json:"email_accepted_status,omitempty"`
	EmailRejectedStatus *EmailStatus   `json:"email_rejected_status,omitempty"`
	Speakers            []uuid.UUID    `json:"speakers"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

func (d Decision) Status() (ProposalStatus, bool) {
	switch d {
	case DecisionAccept:
		return StatusAccepted, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

type Answer string

const (
	AnswerConfirmed Answer = "CONFIRMED"
	AnswerDeclined  Answer = "DECLINED"
)

func (a Answer) Status() (ProposalStatus, bool) {
	switch a {
	case AnswerConfirmed:
		return StatusConfirmed, true
	case AnswerDeclined:
		return StatusDeclined, true
	}
	return "", false
}
