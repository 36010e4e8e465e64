package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccessGuard is the single authorization gate for lifecycle, invitation and
// campaign operations. Speaker checks answer NotFound, never Forbidden, so a
// caller cannot probe for entities they cannot see.
type AccessGuard struct {
	db *database.DB
}

func NewAccessGuard(db *database.DB) *AccessGuard {
	return &AccessGuard{db: db}
}

// RequireRole checks the actor's membership role on the team identified by slug.
func (g *AccessGuard) RequireRole(ctx context.Context, teamSlug string, actorID uuid.UUID, allowed ...models.TeamRole) (*models.TeamMember, error) {
	return g.requireRole(ctx, g.db.Pool, teamSlug, actorID, allowed)
}

// RequireEventRole checks the actor's role on the team and that the event belongs to it.
func (g *AccessGuard) RequireEventRole(ctx context.Context, teamSlug, eventSlug string, actorID uuid.UUID, allowed ...models.TeamRole) (*models.Event, error) {
	return g.requireEventRole(ctx, g.db.Pool, teamSlug, eventSlug, actorID, allowed)
}

func (g *AccessGuard) RequireTalkSpeaker(ctx context.Context, talkID, actorID uuid.UUID) error {
	return g.requireTalkSpeaker(ctx, g.db.Pool, talkID, actorID)
}

func (g *AccessGuard) RequireProposalSpeaker(ctx context.Context, proposalID, actorID uuid.UUID) error {
	return g.requireProposalSpeaker(ctx, g.db.Pool, proposalID, actorID)
}

func (g *AccessGuard) requireRole(ctx context.Context, q database.Querier, teamSlug string, actorID uuid.UUID, allowed []models.TeamRole) (*models.TeamMember, error) {
	var member models.TeamMember
	var role *models.TeamRole
	err := q.QueryRow(ctx, `
		SELECT t.id, tm.role
		FROM teams t
		LEFT JOIN team_members tm ON tm.team_id = t.id AND tm.user_id = $2
		WHERE t.slug = $1
	`, teamSlug, actorID).Scan(&member.TeamID, &role)
	if err != nil {
		return nil, notFound(err, ErrTeamNotFound, "load team membership")
	}
	if role == nil || !slices.Contains(allowed, *role) {
		return nil, ErrForbiddenOperation
	}
	member.UserID = actorID
	member.Role = *role
	return &member, nil
}

func (g *AccessGuard) requireTeamRole(ctx context.Context, q database.Querier, teamID, actorID uuid.UUID, allowed []models.TeamRole) (models.TeamRole, error) {
	var role models.TeamRole
	err := q.QueryRow(ctx, `
		SELECT role FROM team_members WHERE team_id = $1 AND user_id = $2
	`, teamID, actorID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		// Non-members do not learn that the team exists.
		return "", ErrTeamNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load team membership: %w", err)
	}
	if !slices.Contains(allowed, role) {
		return "", ErrForbiddenOperation
	}
	return role, nil
}

func (g *AccessGuard) requireEventRole(ctx context.Context, q database.Querier, teamSlug, eventSlug string, actorID uuid.UUID, allowed []models.TeamRole) (*models.Event, error) {
	member, err := g.requireRole(ctx, q, teamSlug, actorID, allowed)
	if err != nil {
		return nil, err
	}
	event, err := getEventBySlug(ctx, q, eventSlug)
	if err != nil {
		return nil, err
	}
	if event.TeamID != member.TeamID {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (g *AccessGuard) requireTalkSpeaker(ctx context.Context, q database.Querier, talkID, actorID uuid.UUID) error {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM talk_speakers WHERE talk_id = $1 AND user_id = $2)
	`, talkID, actorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check talk speaker: %w", err)
	}
	if !exists {
		return ErrTalkNotFound
	}
	return nil
}

func (g *AccessGuard) requireProposalSpeaker(ctx context.Context, q database.Querier, proposalID, actorID uuid.UUID) error {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM proposal_speakers WHERE proposal_id = $1 AND user_id = $2)
	`, proposalID, actorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check proposal speaker: %w", err)
	}
	if !exists {
		return ErrProposalNotFound
	}
	return nil
}

// speakerTalk loads a talk only if actorID is one of its speakers. The row is
// locked so concurrent speaker-set changes serialize on it.
func (g *AccessGuard) speakerTalk(ctx context.Context, q database.Querier, talkID, actorID uuid.UUID) (*models.Talk, error) {
	t, err := scanTalk(q.QueryRow(ctx, `
		SELECT `+talkColumns+` FROM talks
		WHERE id = $1 AND EXISTS (SELECT 1 FROM talk_speakers WHERE talk_id = $1 AND user_id = $2)
		FOR UPDATE
	`, talkID, actorID))
	if err != nil {
		return nil, notFound(err, ErrTalkNotFound, "load talk")
	}
	t.Speakers, err = talkSpeakers(ctx, q, t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// speakerProposal loads and locks a proposal only if actorID is one of its speakers.
func (g *AccessGuard) speakerProposal(ctx context.Context, q database.Querier, proposalID, actorID uuid.UUID) (*models.Proposal, error) {
	p, err := scanProposal(q.QueryRow(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE id = $1 AND EXISTS (SELECT 1 FROM proposal_speakers WHERE proposal_id = $1 AND user_id = $2)
		FOR UPDATE
	`, proposalID, actorID))
	if err != nil {
		return nil, notFound(err, ErrProposalNotFound, "load proposal")
	}
	p.Speakers, err = proposalSpeakers(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// requireListedSpeaker checks actorID against a speaker set that is already loaded.
func (g *AccessGuard) requireListedSpeaker(speakers []uuid.UUID, actorID uuid.UUID, notFoundErr error) error {
	if !slices.Contains(speakers, actorID) {
		return notFoundErr
	}
	return nil
}
