package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type notificationFixture struct {
	svc    *NotificationService
	db     pgxmock.PgxPoolIface
	mailer *MockMailer
	poster *MockWebhookPoster
	event  *models.Event
	actor  uuid.UUID
}

func setupNotificationService(t *testing.T) *notificationFixture {
	t.Helper()
	db, mock := setupMockDB(t)
	mailer := &MockMailer{}
	poster := &MockWebhookPoster{}
	svc := NewNotificationService(db, NewAccessGuard(db), mailer, poster, testLogger(), NotificationOptions{
		From:        "cfp@example.com",
		Timeout:     time.Second,
		Concurrency: 2,
	})
	return &notificationFixture{
		svc:    svc,
		db:     mock,
		mailer: mailer,
		poster: poster,
		event:  openEvent(uuid.New(), time.Now()),
		actor:  uuid.New(),
	}
}

func (f *notificationFixture) expectOrganizer(role models.TeamRole) {
	f.db.ExpectQuery(`SELECT t.id, tm.role FROM teams t`).
		WithArgs("acme", f.actor).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role"}).AddRow(f.event.TeamID, &role))
	if role == models.RoleReviewer {
		return
	}
	f.db.ExpectQuery(`SELECT .+ FROM events WHERE slug`).
		WithArgs(f.event.Slug).
		WillReturnRows(eventRows(f.event))
}

func sentTo(address string) any {
	return mock.MatchedBy(func(e Email) bool { return e.To == address })
}

func TestNotificationService_AcceptanceCampaign_RunTwice(t *testing.T) {
	f := setupNotificationService(t)
	ctx := context.Background()
	p1, p2 := uuid.New(), uuid.New()
	ada, bob := uuid.New(), uuid.New()

	// First run claims both proposals. Ada speaks on both, Bob on the second only.
	f.expectOrganizer(models.RoleOwner)
	f.db.ExpectQuery(`UPDATE proposals SET email_accepted_status`).
		WithArgs(f.event.ID, models.StatusAccepted, models.EmailPending, []uuid.UUID{}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title"}).
			AddRow(p1, "Talk A").
			AddRow(p2, "Talk B"))
	f.db.ExpectQuery(`SELECT ps.proposal_id, u.id, u.email, u.name FROM proposal_speakers`).
		WithArgs([]uuid.UUID{p1, p2}).
		WillReturnRows(pgxmock.NewRows([]string{"proposal_id", "id", "email", "name"}).
			AddRow(p1, ada, "ada@example.com", "Ada").
			AddRow(p2, ada, "ada@example.com", "Ada").
			AddRow(p2, bob, "bob@example.com", "Bob"))
	f.db.ExpectExec(`UPDATE proposals SET email_accepted_status = \$2`).
		WithArgs([]uuid.UUID{p1, p2}, models.EmailSent, models.EmailPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	// Second run finds nothing left to claim.
	f.expectOrganizer(models.RoleOwner)
	f.db.ExpectQuery(`UPDATE proposals SET email_accepted_status`).
		WithArgs(f.event.ID, models.StatusAccepted, models.EmailPending, []uuid.UUID{}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title"}))

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(e Email) bool {
		return e.To == "ada@example.com" && e.From == "cfp@example.com" &&
			strings.Contains(e.Body, "Talk A") && strings.Contains(e.Body, "Talk B")
	})).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, sentTo("bob@example.com")).Return(nil).Once()

	first, err := f.svc.SendAcceptanceCampaign(ctx, "acme", f.event.Slug, f.actor, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p1, p2}, first.Sent)
	assert.Empty(t, first.Released)
	assert.Empty(t, first.FailedRecipients)

	second, err := f.svc.SendAcceptanceCampaign(ctx, "acme", f.event.Slug, f.actor, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Sent)

	f.mailer.AssertNumberOfCalls(t, "Send", 2)
	f.mailer.AssertExpectations(t)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestNotificationService_RejectionCampaign_FailureIsolated(t *testing.T) {
	f := setupNotificationService(t)
	ctx := context.Background()
	p1, p2 := uuid.New(), uuid.New()
	ada, bob := uuid.New(), uuid.New()
	subset := []uuid.UUID{p1, p2}

	f.expectOrganizer(models.RoleMember)
	f.db.ExpectQuery(`UPDATE proposals SET email_rejected_status`).
		WithArgs(f.event.ID, models.StatusRejected, models.EmailPending, subset).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title"}).
			AddRow(p1, "Talk A").
			AddRow(p2, "Talk B"))
	f.db.ExpectQuery(`SELECT ps.proposal_id`).
		WithArgs([]uuid.UUID{p1, p2}).
		WillReturnRows(pgxmock.NewRows([]string{"proposal_id", "id", "email", "name"}).
			AddRow(p1, ada, "ada@example.com", "Ada").
			AddRow(p2, ada, "ada@example.com", "Ada").
			AddRow(p2, bob, "bob@example.com", "Bob"))
	f.db.ExpectExec(`UPDATE proposals SET email_rejected_status = \$2`).
		WithArgs([]uuid.UUID{p2}, models.EmailSent, models.EmailPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.db.ExpectExec(`UPDATE proposals SET email_rejected_status = NULL`).
		WithArgs([]uuid.UUID{p1}, models.EmailPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	f.mailer.On("Send", mock.Anything, sentTo("ada@example.com")).Return(errors.New("smtp down")).Once()
	f.mailer.On("Send", mock.Anything, sentTo("bob@example.com")).Return(nil).Once()

	result, err := f.svc.SendRejectionCampaign(ctx, "acme", f.event.Slug, f.actor, subset)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p2}, result.Sent)
	assert.Equal(t, []uuid.UUID{p1}, result.Released)
	assert.Equal(t, []string{"ada@example.com"}, result.FailedRecipients)
	f.mailer.AssertExpectations(t)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestNotificationService_Campaign_ReviewerForbidden(t *testing.T) {
	f := setupNotificationService(t)

	f.expectOrganizer(models.RoleReviewer)

	_, err := f.svc.SendAcceptanceCampaign(context.Background(), "acme", f.event.Slug, f.actor, nil)

	assert.ErrorIs(t, err, ErrForbiddenOperation)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestNotificationService_ProposalSubmitted(t *testing.T) {
	f := setupNotificationService(t)
	organizer := "orga@example.com"
	webhook := "https://hooks.slack.test/T000"
	f.event.EmailOrganizer = &organizer
	f.event.EmailNotifications = []string{models.NotifySubmitted}
	f.event.SlackWebhookURL = &webhook

	ada, bob := uuid.New(), uuid.New()
	proposal := newTestProposal(uuid.New(), f.event.ID, models.StatusSubmitted, time.Now())
	proposal.Speakers = []uuid.UUID{ada, bob}

	f.db.ExpectQuery(`SELECT id, email, name FROM users`).
		WithArgs([]uuid.UUID{ada, bob}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name"}).
			AddRow(ada, "ada@example.com", "Ada").
			AddRow(bob, "bob@example.com", "Bob"))

	f.mailer.On("Send", mock.Anything, sentTo("ada@example.com")).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, sentTo("bob@example.com")).Return(errors.New("mailbox full")).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(e Email) bool {
		return e.To == organizer && strings.Contains(e.Body, "Ada &amp; Bob")
	})).Return(nil).Once()
	f.poster.On("Post", mock.Anything, webhook, mock.MatchedBy(func(m SlackMessage) bool {
		return len(m.Attachments) == 1 && m.Attachments[0].Title == proposal.Title
	})).Return(errors.New("slack unavailable")).Once()

	f.svc.ProposalSubmitted(context.Background(), f.event, proposal)

	f.mailer.AssertExpectations(t)
	f.poster.AssertExpectations(t)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestNotificationService_ProposalAnswered(t *testing.T) {
	organizer := "orga@example.com"

	tests := []struct {
		name          string
		status        models.ProposalStatus
		notifications []string
		wantEmail     bool
	}{
		{"confirmed and enabled", models.StatusConfirmed, []string{models.NotifyConfirmed}, true},
		{"declined and enabled", models.StatusDeclined, []string{models.NotifyDeclined}, true},
		{"confirmed but only declines enabled", models.StatusConfirmed, []string{models.NotifyDeclined}, false},
		{"not an answer", models.StatusAccepted, []string{models.NotifyConfirmed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupNotificationService(t)
			f.event.EmailOrganizer = &organizer
			f.event.EmailNotifications = tt.notifications
			proposal := newTestProposal(uuid.New(), f.event.ID, tt.status, time.Now())

			if tt.wantEmail {
				f.mailer.On("Send", mock.Anything, sentTo(organizer)).Return(nil).Once()
			}

			f.svc.ProposalAnswered(context.Background(), f.event, proposal)

			if tt.wantEmail {
				f.mailer.AssertExpectations(t)
			} else {
				f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestNotificationService_ProposalSubmitted_EscapesMarkup(t *testing.T) {
	f := setupNotificationService(t)
	organizer := "orga@example.com"
	f.event.EmailOrganizer = &organizer
	f.event.EmailNotifications = []string{models.NotifySubmitted}

	mallory := uuid.New()
	proposal := newTestProposal(uuid.New(), f.event.ID, models.StatusSubmitted, time.Now())
	proposal.Title = `<a href="https://evil.example/login">Click to review</a>`
	proposal.Speakers = []uuid.UUID{mallory}

	f.db.ExpectQuery(`SELECT id, email, name FROM users`).
		WithArgs([]uuid.UUID{mallory}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name"}).
			AddRow(mallory, "mallory@example.com", "<img src=x onerror=alert(1)>"))

	var bodies []string
	f.mailer.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		bodies = append(bodies, args.Get(1).(Email).Body)
	}).Return(nil).Twice()

	f.svc.ProposalSubmitted(context.Background(), f.event, proposal)

	require.Len(t, bodies, 2)
	for _, body := range bodies {
		assert.NotContains(t, body, "<a href")
		assert.NotContains(t, body, "<img")
	}
	assert.Contains(t, bodies[1], "&lt;a href=")
	assert.Contains(t, bodies[1], "&lt;img src=x onerror=alert(1)&gt;")
	f.mailer.AssertExpectations(t)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestCampaignEmail_EscapesTitles(t *testing.T) {
	event := openEvent(uuid.New(), time.Now())
	r := &campaignRecipient{
		user:   models.User{Email: "ada@example.com", Name: "Ada"},
		titles: []string{"Plain title", `<script>alert("x")</script>`},
	}

	msg, err := campaignEmail(acceptanceCampaign, event, r)

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.Body, "<li>Plain title</li>")
	assert.Contains(t, msg.Body, "&lt;script&gt;")
	assert.NotContains(t, msg.Body, "<script>")
}
