package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InviteService issues one reusable token per talk, proposal or team.
// Consuming the token makes the holder a co-speaker or a team reviewer.
type InviteService struct {
	db     *database.DB
	access *AccessGuard
	appURL string
}

func NewInviteService(db *database.DB, access *AccessGuard, appURL string) *InviteService {
	return &InviteService{db: db, access: access, appURL: strings.TrimRight(appURL, "/")}
}

func inviteColumn(entity models.InviteEntity) (string, bool) {
	switch entity {
	case models.InviteTalk:
		return "talk_id", true
	case models.InviteProposal:
		return "proposal_id", true
	case models.InviteTeam:
		return "team_id", true
	}
	return "", false
}

// GetOrCreate returns the invite token of the entity, creating it on first use.
// Concurrent callers converge on the same token through the unique entity column.
func (s *InviteService) GetOrCreate(ctx context.Context, entity models.InviteEntity, entityID, requesterID uuid.UUID) (uuid.UUID, error) {
	col, ok := inviteColumn(entity)
	if !ok {
		return uuid.Nil, ErrEntityNotFound
	}
	if err := s.requireAccess(ctx, entity, entityID, requesterID); err != nil {
		return uuid.Nil, err
	}

	// A revoke can slip in between the conflict and the re-read; retry once.
	for range 2 {
		var id uuid.UUID
		err := s.db.Pool.QueryRow(ctx, `
			INSERT INTO invites (`+col+`, invited_by) VALUES ($1, $2)
			ON CONFLICT (`+col+`) DO NOTHING
			RETURNING id
		`, entityID, requesterID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("failed to create invite: %w", err)
		}

		err = s.db.Pool.QueryRow(ctx, `SELECT id FROM invites WHERE `+col+` = $1`, entityID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("failed to load invite: %w", err)
		}
	}
	return uuid.Nil, fmt.Errorf("failed to create invite: concurrent revoke")
}

func (s *InviteService) requireAccess(ctx context.Context, entity models.InviteEntity, entityID, requesterID uuid.UUID) error {
	var err error
	switch entity {
	case models.InviteTalk:
		err = s.access.requireTalkSpeaker(ctx, s.db.Pool, entityID, requesterID)
	case models.InviteProposal:
		err = s.access.requireProposalSpeaker(ctx, s.db.Pool, entityID, requesterID)
	case models.InviteTeam:
		_, err = s.access.requireTeamRole(ctx, s.db.Pool, entityID, requesterID, []models.TeamRole{models.RoleOwner})
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return ErrEntityNotFound
	}
	return err
}

// InviteURL is the link a speaker shares with the person they invite.
func (s *InviteService) InviteURL(token uuid.UUID) string {
	return s.appURL + "/invite/" + token.String()
}

// Consume adds joiningUserID to the entity behind token. Consuming again is a no-op.
func (s *InviteService) Consume(ctx context.Context, token string, joiningUserID uuid.UUID) (*models.Joined, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return nil, ErrInvitationNotFound
	}

	var joined *models.Joined
	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		var invite models.Invite
		err := tx.QueryRow(ctx, `
			SELECT id, talk_id, proposal_id, team_id, invited_by, created_at
			FROM invites WHERE id = $1
		`, id).Scan(&invite.ID, &invite.TalkID, &invite.ProposalID, &invite.TeamID, &invite.InvitedBy, &invite.CreatedAt)
		if err != nil {
			return notFound(err, ErrInvitationNotFound, "load invite")
		}

		switch {
		case invite.TalkID != nil:
			joined, err = s.joinTalk(ctx, tx, *invite.TalkID, joiningUserID)
		case invite.ProposalID != nil:
			joined, err = s.joinProposal(ctx, tx, *invite.ProposalID, joiningUserID)
		case invite.TeamID != nil:
			joined, err = s.joinTeam(ctx, tx, *invite.TeamID, joiningUserID)
		default:
			err = ErrInvitationNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

func (s *InviteService) joinTalk(ctx context.Context, tx pgx.Tx, talkID, userID uuid.UUID) (*models.Joined, error) {
	var title string
	err := tx.QueryRow(ctx, `SELECT title FROM talks WHERE id = $1 FOR UPDATE`, talkID).Scan(&title)
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound, "load talk")
	}
	if err := addTalkSpeaker(ctx, tx, talkID, userID); err != nil {
		return nil, err
	}
	return &models.Joined{Entity: models.InviteTalk, TalkID: &talkID, Title: title}, nil
}

func (s *InviteService) joinProposal(ctx context.Context, tx pgx.Tx, proposalID, userID uuid.UUID) (*models.Joined, error) {
	if err := lockProposalTalk(ctx, tx, proposalID); err != nil {
		return nil, err
	}

	var talkID *uuid.UUID
	var title, eventSlug string
	err := tx.QueryRow(ctx, `
		SELECT p.talk_id, p.title, e.slug
		FROM proposals p
		JOIN events e ON e.id = p.event_id
		WHERE p.id = $1
		FOR UPDATE OF p
	`, proposalID).Scan(&talkID, &title, &eventSlug)
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound, "load proposal")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO proposal_speakers (proposal_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, proposalID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to add proposal speaker: %w", err)
	}
	if talkID != nil {
		if err := addTalkSpeaker(ctx, tx, *talkID, userID); err != nil {
			return nil, err
		}
	}
	return &models.Joined{
		Entity:     models.InviteProposal,
		TalkID:     talkID,
		ProposalID: &proposalID,
		EventSlug:  eventSlug,
		Title:      title,
	}, nil
}

func (s *InviteService) joinTeam(ctx context.Context, tx pgx.Tx, teamID, userID uuid.UUID) (*models.Joined, error) {
	var slug, name string
	err := tx.QueryRow(ctx, `SELECT slug, name FROM teams WHERE id = $1`, teamID).Scan(&slug, &name)
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound, "load team")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, teamID, userID, models.RoleReviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to add team member: %w", err)
	}
	return &models.Joined{Entity: models.InviteTeam, TeamSlug: slug, Title: name}, nil
}

// addTalkSpeaker adds userID to the talk and to every live proposal derived from it.
func addTalkSpeaker(ctx context.Context, q database.Querier, talkID, userID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO talk_speakers (talk_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, talkID, userID)
	if err != nil {
		return fmt.Errorf("failed to add talk speaker: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO proposal_speakers (proposal_id, user_id)
		SELECT id, $2::uuid FROM proposals WHERE talk_id = $1 AND status = ANY($3)
		ON CONFLICT DO NOTHING
	`, talkID, userID, liveStatuses)
	if err != nil {
		return fmt.Errorf("failed to add proposal speakers: %w", err)
	}
	return nil
}

// Revoke deletes the entity's invite when requesterID created it. Anyone else
// gets no error and no change.
func (s *InviteService) Revoke(ctx context.Context, entity models.InviteEntity, entityID, requesterID uuid.UUID) error {
	col, ok := inviteColumn(entity)
	if !ok {
		return nil
	}
	_, err := s.db.Pool.Exec(ctx, `
		DELETE FROM invites WHERE `+col+` = $1 AND invited_by = $2
	`, entityID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to revoke invite: %w", err)
	}
	return nil
}
