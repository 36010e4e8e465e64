package services

import (
	"context"
	"testing"
	"time"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockMailer mocks the Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg Email) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockWebhookPoster mocks the WebhookPoster
type MockWebhookPoster struct {
	mock.Mock
}

func (m *MockWebhookPoster) Post(ctx context.Context, webhookURL string, msg SlackMessage) error {
	args := m.Called(ctx, webhookURL, msg)
	return args.Error(0)
}

// MockNotifier mocks the Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ProposalSubmitted(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	m.Called(ctx, event, proposal)
}

func (m *MockNotifier) ProposalAnswered(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	m.Called(ctx, event, proposal)
}

func setupMockDB(t *testing.T) (*database.DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &database.DB{Pool: mock}, mock
}

var (
	eventCols = []string{
		"id", "slug", "name", "type", "team_id", "cfp_start", "cfp_end", "max_proposals",
		"formats_required", "categories_required", "email_organizer", "email_notifications",
		"slack_webhook_url", "created_at", "updated_at",
	}
	talkCols = []string{
		"id", "creator_id", "title", "abstract", "level", "references", "languages", "archived",
		"created_at", "updated_at",
	}
	proposalCols = []string{
		"id", "talk_id", "event_id", "title", "abstract", "level", "references", "languages", "status",
		"comments", "formats", "categories", "email_accepted_status", "email_rejected_status",
		"created_at", "updated_at",
	}
)

func openEvent(teamID uuid.UUID, now time.Time) *models.Event {
	start := now.Add(-24 * time.Hour)
	end := now.Add(24 * time.Hour)
	return &models.Event{
		ID:                 uuid.New(),
		Slug:               "devfest",
		Name:               "DevFest",
		Type:               models.EventTypeConference,
		TeamID:             teamID,
		CFPStart:           &start,
		CFPEnd:             &end,
		EmailNotifications: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func eventRows(e *models.Event) *pgxmock.Rows {
	return pgxmock.NewRows(eventCols).AddRow(
		e.ID, e.Slug, e.Name, e.Type, e.TeamID, e.CFPStart, e.CFPEnd, e.MaxProposals,
		e.FormatsRequired, e.CategoriesRequired, e.EmailOrganizer, e.EmailNotifications,
		e.SlackWebhookURL, e.CreatedAt, e.UpdatedAt,
	)
}

func talkRows(t *models.Talk) *pgxmock.Rows {
	return pgxmock.NewRows(talkCols).AddRow(
		t.ID, t.CreatorID, t.Title, t.Abstract, t.Level, t.References, t.Languages, t.Archived,
		t.CreatedAt, t.UpdatedAt,
	)
}

func proposalRows(p *models.Proposal) *pgxmock.Rows {
	return pgxmock.NewRows(proposalCols).AddRow(
		p.ID, p.TalkID, p.EventID, p.Title, p.Abstract, p.Level, p.References, p.Languages, p.Status,
		p.Comments, p.Formats, p.Categories, p.EmailAcceptedStatus, p.EmailRejectedStatus,
		p.CreatedAt, p.UpdatedAt,
	)
}

func idRows(ids ...uuid.UUID) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func newTestTalk(creatorID uuid.UUID, now time.Time) *models.Talk {
	return &models.Talk{
		ID:        uuid.New(),
		CreatorID: creatorID,
		Title:     "Go in production",
		Abstract:  "Lessons learned",
		Languages: []string{"en"},
		Speakers:  []uuid.UUID{creatorID},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestProposal(talkID, eventID uuid.UUID, status models.ProposalStatus, now time.Time) *models.Proposal {
	return &models.Proposal{
		ID:         uuid.New(),
		TalkID:     &talkID,
		EventID:    eventID,
		Title:      "Go in production",
		Abstract:   "Lessons learned",
		Languages:  []string{"en"},
		Status:     status,
		Formats:    []uuid.UUID{},
		Categories: []uuid.UUID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
