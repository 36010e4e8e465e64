package services

import (
	"context"
	"testing"
	"time"

	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessGuard_RequireRole(t *testing.T) {
	owner := models.RoleOwner
	reviewer := models.RoleReviewer

	tests := []struct {
		name    string
		role    *models.TeamRole
		wantErr error
	}{
		{"allowed role", &owner, nil},
		{"role not allowed", &reviewer, ErrForbiddenOperation},
		{"not a member", nil, ErrForbiddenOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			guard := NewAccessGuard(db)
			teamID := uuid.New()
			actorID := uuid.New()

			mock.ExpectQuery(`SELECT t.id, tm.role FROM teams t LEFT JOIN team_members`).
				WithArgs("acme", actorID).
				WillReturnRows(pgxmock.NewRows([]string{"id", "role"}).AddRow(teamID, tt.role))

			member, err := guard.RequireRole(context.Background(), "acme", actorID, models.OrganizerRoles...)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrForbidden)
			} else {
				require.NoError(t, err)
				assert.Equal(t, teamID, member.TeamID)
				assert.Equal(t, models.RoleOwner, member.Role)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccessGuard_RequireRole_TeamNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	guard := NewAccessGuard(db)
	actorID := uuid.New()

	mock.ExpectQuery(`SELECT t.id, tm.role FROM teams t`).
		WithArgs("missing", actorID).
		WillReturnError(pgx.ErrNoRows)

	_, err := guard.RequireRole(context.Background(), "missing", actorID, models.AllRoles...)

	assert.ErrorIs(t, err, ErrTeamNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGuard_RequireEventRole_OtherTeam(t *testing.T) {
	db, mock := setupMockDB(t)
	guard := NewAccessGuard(db)
	actorID := uuid.New()
	role := models.RoleMember
	event := openEvent(uuid.New(), time.Now())

	mock.ExpectQuery(`SELECT t.id, tm.role FROM teams t`).
		WithArgs("acme", actorID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role"}).AddRow(uuid.New(), &role))
	mock.ExpectQuery(`SELECT .+ FROM events WHERE slug`).
		WithArgs(event.Slug).
		WillReturnRows(eventRows(event))

	_, err := guard.RequireEventRole(context.Background(), "acme", event.Slug, actorID, models.AllRoles...)

	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGuard_RequireTalkSpeaker(t *testing.T) {
	db, mock := setupMockDB(t)
	guard := NewAccessGuard(db)
	talkID := uuid.New()
	speakerID := uuid.New()
	strangerID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM talk_speakers`).
		WithArgs(talkID, speakerID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM talk_speakers`).
		WithArgs(talkID, strangerID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	assert.NoError(t, guard.RequireTalkSpeaker(context.Background(), talkID, speakerID))

	err := guard.RequireTalkSpeaker(context.Background(), talkID, strangerID)
	assert.ErrorIs(t, err, ErrTalkNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGuard_RequireProposalSpeaker(t *testing.T) {
	db, mock := setupMockDB(t)
	guard := NewAccessGuard(db)
	proposalID := uuid.New()
	strangerID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM proposal_speakers`).
		WithArgs(proposalID, strangerID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := guard.RequireProposalSpeaker(context.Background(), proposalID, strangerID)

	assert.ErrorIs(t, err, ErrProposalNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
