package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Row loaders shared by the services. They accept a Querier so they can run
// on the pool or inside an open transaction.

const eventColumns = `id, slug, name, type, team_id, cfp_start, cfp_end, max_proposals,
	formats_required, categories_required, email_organizer, email_notifications,
	slack_webhook_url, created_at, updated_at`

const talkColumns = `id, creator_id, title, abstract, level, "references", languages, archived, created_at, updated_at`

const proposalColumns = `id, talk_id, event_id, title, abstract, level, "references", languages, status,
	comments, formats, categories, email_accepted_status, email_rejected_status, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.Slug, &e.Name, &e.Type, &e.TeamID, &e.CFPStart, &e.CFPEnd, &e.MaxProposals,
		&e.FormatsRequired, &e.CategoriesRequired, &e.EmailOrganizer, &e.EmailNotifications,
		&e.SlackWebhookURL, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func getEvent(ctx context.Context, q database.Querier, eventID uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID))
	if err != nil {
		return nil, notFound(err, ErrEventNotFound, "load event")
	}
	return e, nil
}

func getEventBySlug(ctx context.Context, q database.Querier, slug string) (*models.Event, error) {
	e, err := scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFound(err, ErrEventNotFound, "load event")
	}
	return e, nil
}

func scanTalk(row pgx.Row) (*models.Talk, error) {
	var t models.Talk
	err := row.Scan(
		&t.ID, &t.CreatorID, &t.Title, &t.Abstract, &t.Level, &t.References,
		&t.Languages, &t.Archived, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func talkSpeakers(ctx context.Context, q database.Querier, talkID uuid.UUID) ([]uuid.UUID, error) {
	return collectIDs(ctx, q, `SELECT user_id FROM talk_speakers WHERE talk_id = $1`, talkID)
}

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(
		&p.ID, &p.TalkID, &p.EventID, &p.Title, &p.Abstract, &p.Level, &p.References,
		&p.Languages, &p.Status, &p.Comments, &p.Formats, &p.Categories,
		&p.EmailAcceptedStatus, &p.EmailRejectedStatus, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// getTalkProposal returns the proposal of a talk for an event, or nil when there is none.
func getTalkProposal(ctx context.Context, q database.Querier, talkID, eventID uuid.UUID) (*models.Proposal, error) {
	p, err := scanProposal(q.QueryRow(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE talk_id = $1 AND event_id = $2
		FOR UPDATE
	`, talkID, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal: %w", err)
	}
	p.Speakers, err = proposalSpeakers(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// lockProposalTalk locks the talk of a proposal, if it still has one. Callers
// that go on to lock the proposal take the talk lock first, as every
// talk-scoped write does.
func lockProposalTalk(ctx context.Context, q database.Querier, proposalID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		SELECT t.id FROM talks t
		JOIN proposals p ON p.talk_id = t.id
		WHERE p.id = $1
		FOR UPDATE OF t
	`, proposalID)
	if err != nil {
		return fmt.Errorf("failed to lock talk: %w", err)
	}
	return nil
}

func proposalSpeakers(ctx context.Context, q database.Querier, proposalID uuid.UUID) ([]uuid.UUID, error) {
	return collectIDs(ctx, q, `SELECT user_id FROM proposal_speakers WHERE proposal_id = $1`, proposalID)
}

// replaceProposalSpeakers writes the full speaker set of a proposal.
func replaceProposalSpeakers(ctx context.Context, q database.Querier, proposalID uuid.UUID, speakers []uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM proposal_speakers WHERE proposal_id = $1`, proposalID); err != nil {
		return fmt.Errorf("failed to clear proposal speakers: %w", err)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO proposal_speakers (proposal_id, user_id)
		SELECT $1::uuid, unnest($2::uuid[])
		ON CONFLICT DO NOTHING
	`, proposalID, speakers)
	if err != nil {
		return fmt.Errorf("failed to set proposal speakers: %w", err)
	}
	return nil
}

func collectIDs(ctx context.Context, q database.Querier, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// notFound maps a missing row to the given domain error and wraps anything else.
func notFound(err error, domainErr error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErr
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
