package services

import (
	"context"
	"fmt"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/google/uuid"
)

// QuotaGuard enforces the per-speaker maximum of non-draft proposals on an event.
// Drafts never count, so speakers may keep more drafts than the cap.
type QuotaGuard struct {
	db *database.DB
}

func NewQuotaGuard(db *database.DB) *QuotaGuard {
	return &QuotaGuard{db: db}
}

// CheckQuota reports whether speakerID may hold one more submitted proposal on
// the event. excluding is left out of the count so resubmitting a proposal
// never counts against itself.
//
// Outside a transaction the answer is advisory only; submissions use the
// locked variant inside their own transaction.
func (g *QuotaGuard) CheckQuota(ctx context.Context, eventID, speakerID uuid.UUID, excluding *uuid.UUID) (bool, error) {
	return g.checkQuota(ctx, g.db.Pool, eventID, speakerID, excluding)
}

func (g *QuotaGuard) checkQuota(ctx context.Context, q database.Querier, eventID, speakerID uuid.UUID, excluding *uuid.UUID) (bool, error) {
	var maxProposals *int
	err := q.QueryRow(ctx, `SELECT max_proposals FROM events WHERE id = $1`, eventID).Scan(&maxProposals)
	if err != nil {
		return false, notFound(err, ErrEventNotFound, "load event quota")
	}
	if maxProposals == nil {
		return true, nil
	}

	var count int
	err = q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM proposals p
		JOIN proposal_speakers ps ON ps.proposal_id = p.id
		WHERE p.event_id = $1 AND ps.user_id = $2 AND p.status <> 'DRAFT'
		AND ($3::uuid IS NULL OR p.id <> $3)
	`, eventID, speakerID, excluding).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count proposals: %w", err)
	}
	return count < *maxProposals, nil
}

// lockSpeakerQuota serializes submissions of one speaker on one event until the
// surrounding transaction ends, so the quota count cannot go stale before the write.
func lockSpeakerQuota(ctx context.Context, q database.Querier, eventID, speakerID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))
	`, eventID.String(), speakerID.String())
	if err != nil {
		return fmt.Errorf("failed to lock speaker quota: %w", err)
	}
	return nil
}
