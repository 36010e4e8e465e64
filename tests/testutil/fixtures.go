package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
)

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateUser creates a test user with default values
func (f *Fixtures) CreateUser(t *testing.T) *models.User {
	t.Helper()
	f.counter++

	user := &models.User{
		Email: fmt.Sprintf("speaker%d@example.com", f.counter),
		Name:  fmt.Sprintf("Speaker %d", f.counter),
	}

	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO users (email, name) VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, user.Email, user.Name).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// CreateTeam creates a team owned by owner
func (f *Fixtures) CreateTeam(t *testing.T, owner *models.User) *models.Team {
	t.Helper()
	f.counter++

	team := &models.Team{
		Slug: fmt.Sprintf("team-%d", f.counter),
		Name: fmt.Sprintf("Team %d", f.counter),
	}
	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO teams (slug, name) VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, team.Slug, team.Name).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create team: %v", err)
	}

	f.AddMember(t, team, owner, models.RoleOwner)
	return team
}

// AddMember adds a user to a team with the given role
func (f *Fixtures) AddMember(t *testing.T, team *models.Team, user *models.User, role models.TeamRole) {
	t.Helper()
	_, err := f.db.Pool.Exec(context.Background(), `
		INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)
	`, team.ID, user.ID, role)
	if err != nil {
		t.Fatalf("failed to add team member: %v", err)
	}
}

// EventOption configures a test event
type EventOption func(*models.Event)

// WithMaxProposals caps the number of submitted proposals per speaker
func WithMaxProposals(n int) EventOption {
	return func(e *models.Event) {
		e.MaxProposals = &n
	}
}

// WithCFP sets the CFP window
func WithCFP(start, end *time.Time) EventOption {
	return func(e *models.Event) {
		e.CFPStart = start
		e.CFPEnd = end
	}
}

// CreateEvent creates a conference of team whose CFP opened yesterday with no end
func (f *Fixtures) CreateEvent(t *testing.T, team *models.Team, opts ...EventOption) *models.Event {
	t.Helper()
	f.counter++

	start := time.Now().Add(-24 * time.Hour)
	event := &models.Event{
		Slug:               fmt.Sprintf("event-%d", f.counter),
		Name:               fmt.Sprintf("Event %d", f.counter),
		Type:               models.EventTypeConference,
		TeamID:             team.ID,
		CFPStart:           &start,
		EmailNotifications: []string{},
	}
	for _, opt := range opts {
		opt(event)
	}

	err := f.db.Pool.QueryRow(context.Background(), `
		INSERT INTO events (slug, name, type, team_id, cfp_start, cfp_end, max_proposals,
			formats_required, categories_required, email_organizer, email_notifications, slack_webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`, event.Slug, event.Name, event.Type, event.TeamID, event.CFPStart, event.CFPEnd, event.MaxProposals,
		event.FormatsRequired, event.CategoriesRequired, event.EmailOrganizer, event.EmailNotifications,
		event.SlackWebhookURL).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

// ProposalStatus reads the current status of a proposal
func (f *Fixtures) ProposalStatus(t *testing.T, proposalID uuid.UUID) models.ProposalStatus {
	t.Helper()
	var status models.ProposalStatus
	err := f.db.Pool.QueryRow(context.Background(), `
		SELECT status FROM proposals WHERE id = $1
	`, proposalID).Scan(&status)
	if err != nil {
		t.Fatalf("failed to read proposal status: %v", err)
	}
	return status
}

// SetProposalStatus forces a proposal into status, bypassing the lifecycle
func (f *Fixtures) SetProposalStatus(t *testing.T, proposalID uuid.UUID, status models.ProposalStatus) {
	t.Helper()
	_, err := f.db.Pool.Exec(context.Background(), `
		UPDATE proposals SET status = $2 WHERE id = $1
	`, proposalID, status)
	if err != nil {
		t.Fatalf("failed to set proposal status: %v", err)
	}
}

// TalkSpeakers lists the speakers of a talk
func (f *Fixtures) TalkSpeakers(t *testing.T, talkID uuid.UUID) []uuid.UUID {
	t.Helper()
	return f.ids(t, `SELECT user_id FROM talk_speakers WHERE talk_id = $1 ORDER BY user_id`, talkID)
}

// ProposalSpeakers lists the speakers of a proposal
func (f *Fixtures) ProposalSpeakers(t *testing.T, proposalID uuid.UUID) []uuid.UUID {
	t.Helper()
	return f.ids(t, `SELECT user_id FROM proposal_speakers WHERE proposal_id = $1 ORDER BY user_id`, proposalID)
}

func (f *Fixtures) ids(t *testing.T, sql string, args ...any) []uuid.UUID {
	t.Helper()
	rows, err := f.db.Pool.Query(context.Background(), sql, args...)
	if err != nil {
		t.Fatalf("failed to query ids: %v", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("failed to scan id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
