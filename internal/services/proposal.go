package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// NewTalk is the talk reference that makes SaveDraft create a talk.
const NewTalk = "new"

// Notifier receives committed proposal transitions.
type Notifier interface {
	ProposalSubmitted(ctx context.Context, event *models.Event, proposal *models.Proposal)
	ProposalAnswered(ctx context.Context, event *models.Event, proposal *models.Proposal)
}

// liveStatuses are the proposal statuses that follow speaker changes on their talk.
var liveStatuses = []models.ProposalStatus{models.StatusDraft, models.StatusSubmitted, models.StatusAccepted}

// ProposalService owns every proposal status transition and the speaker sets
// of talks and proposals.
type ProposalService struct {
	db       *database.DB
	access   *AccessGuard
	quota    *QuotaGuard
	notifier Notifier
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewProposalService(db *database.DB, access *AccessGuard, quota *QuotaGuard, notifier Notifier, log *zap.SugaredLogger) *ProposalService {
	return &ProposalService{
		db:       db,
		access:   access,
		quota:    quota,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to evaluate CFP windows.
func (s *ProposalService) WithClock(now func() time.Time) *ProposalService {
	s.now = now
	return s
}

// SaveDraft creates or updates the talk referenced by talkRef (NewTalk creates one)
// and upserts its DRAFT proposal on the event with the same content and speakers.
func (s *ProposalService) SaveDraft(ctx context.Context, talkRef string, eventID, speakerID uuid.UUID, data models.TalkData) (*models.Proposal, error) {
	if strings.TrimSpace(data.Title) == "" {
		return nil, ErrInvalidInput
	}
	if data.Languages == nil {
		data.Languages = []string{}
	}

	var talkID uuid.UUID
	if talkRef != NewTalk {
		id, err := uuid.Parse(talkRef)
		if err != nil {
			return nil, ErrTalkNotFound
		}
		talkID = id
	}

	var proposal *models.Proposal
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		event, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if eventCFPState(event, s.now()) != models.CFPOpened {
			return ErrCfpNotOpen
		}

		var talk *models.Talk
		if talkRef == NewTalk {
			talk, err = s.createTalk(ctx, tx, speakerID, data)
		} else {
			talk, err = s.updateTalk(ctx, tx, talkID, speakerID, data)
		}
		if err != nil {
			return err
		}

		existing, err := getTalkProposal(ctx, tx, talk.ID, eventID)
		if err != nil {
			return err
		}

		if existing == nil {
			proposal, err = scanProposal(tx.QueryRow(ctx, `
				INSERT INTO proposals (talk_id, event_id, title, abstract, level, "references", languages, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING `+proposalColumns,
				talk.ID, eventID, data.Title, data.Abstract, data.Level, data.References, data.Languages, models.StatusDraft))
			if err != nil {
				return fmt.Errorf("failed to create proposal: %w", err)
			}
		} else {
			if existing.Status != models.StatusDraft {
				return ErrProposalStateConflict
			}
			proposal, err = scanProposal(tx.QueryRow(ctx, `
				UPDATE proposals
				SET title = $2, abstract = $3, level = $4, "references" = $5, languages = $6, updated_at = NOW()
				WHERE id = $1
				RETURNING `+proposalColumns,
				existing.ID, data.Title, data.Abstract, data.Level, data.References, data.Languages))
			if err != nil {
				return fmt.Errorf("failed to update proposal: %w", err)
			}
		}

		if err := replaceProposalSpeakers(ctx, tx, proposal.ID, talk.Speakers); err != nil {
			return err
		}
		proposal.Speakers = talk.Speakers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

func (s *ProposalService) createTalk(ctx context.Context, tx pgx.Tx, speakerID uuid.UUID, data models.TalkData) (*models.Talk, error) {
	talk, err := scanTalk(tx.QueryRow(ctx, `
		INSERT INTO talks (creator_id, title, abstract, level, "references", languages)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+talkColumns,
		speakerID, data.Title, data.Abstract, data.Level, data.References, data.Languages))
	if err != nil {
		return nil, fmt.Errorf("failed to create talk: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO talk_speakers (talk_id, user_id) VALUES ($1, $2)
	`, talk.ID, speakerID)
	if err != nil {
		return nil, fmt.Errorf("failed to add talk speaker: %w", err)
	}
	talk.Speakers = []uuid.UUID{speakerID}
	return talk, nil
}

func (s *ProposalService) updateTalk(ctx context.Context, tx pgx.Tx, talkID, speakerID uuid.UUID, data models.TalkData) (*models.Talk, error) {
	current, err := s.access.speakerTalk(ctx, tx, talkID, speakerID)
	if err != nil {
		return nil, err
	}
	if current.Archived {
		return nil, ErrTalkNotFound
	}
	talk, err := scanTalk(tx.QueryRow(ctx, `
		UPDATE talks
		SET title = $2, abstract = $3, level = $4, "references" = $5, languages = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+talkColumns,
		talkID, data.Title, data.Abstract, data.Level, data.References, data.Languages))
	if err != nil {
		return nil, fmt.Errorf("failed to update talk: %w", err)
	}
	talk.Speakers = current.Speakers
	return talk, nil
}

// Submit moves the talk's proposal on the event to SUBMITTED, creating it from
// the talk when no draft exists. The quota check and the write share one
// transaction holding the speaker's quota lock.
func (s *ProposalService) Submit(ctx context.Context, talkID, eventID, speakerID uuid.UUID, message *string) (*models.Proposal, error) {
	var event *models.Event
	var proposal *models.Proposal
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		event, err = getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if eventCFPState(event, s.now()) != models.CFPOpened {
			return ErrCfpNotOpen
		}

		talk, err := s.access.speakerTalk(ctx, tx, talkID, speakerID)
		if errors.Is(err, ErrTalkNotFound) {
			return ErrProposalNotFound
		}
		if err != nil {
			return err
		}
		if talk.Archived {
			return ErrProposalNotFound
		}

		if err := lockSpeakerQuota(ctx, tx, eventID, speakerID); err != nil {
			return err
		}

		existing, err := getTalkProposal(ctx, tx, talkID, eventID)
		if err != nil {
			return err
		}
		var excluding *uuid.UUID
		if existing != nil {
			if err := s.access.requireListedSpeaker(existing.Speakers, speakerID, ErrProposalNotFound); err != nil {
				return err
			}
			if existing.Status != models.StatusDraft && existing.Status != models.StatusSubmitted {
				return ErrProposalSubmission
			}
			excluding = &existing.ID
		}

		allowed, err := s.quota.checkQuota(ctx, tx, eventID, speakerID, excluding)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrMaxProposalsReached
		}

		if existing == nil {
			if !meetsRequirements(event, nil, nil) {
				return ErrProposalSubmission
			}
			proposal, err = scanProposal(tx.QueryRow(ctx, `
				INSERT INTO proposals (talk_id, event_id, title, abstract, level, "references", languages, status, comments)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING `+proposalColumns,
				talk.ID, eventID, talk.Title, talk.Abstract, talk.Level, talk.References, talk.Languages,
				models.StatusSubmitted, message))
			if err != nil {
				return fmt.Errorf("failed to create proposal: %w", err)
			}
			if err := replaceProposalSpeakers(ctx, tx, proposal.ID, talk.Speakers); err != nil {
				return err
			}
			proposal.Speakers = talk.Speakers
			return nil
		}

		if !meetsRequirements(event, existing.Formats, existing.Categories) {
			return ErrProposalSubmission
		}
		proposal, err = scanProposal(tx.QueryRow(ctx, `
			UPDATE proposals SET status = $2, comments = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+proposalColumns,
			existing.ID, models.StatusSubmitted, message))
		if err != nil {
			return fmt.Errorf("failed to submit proposal: %w", err)
		}
		proposal.Speakers = existing.Speakers
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("proposal submitted", "proposal", proposal.ID, "event", event.Slug, "speaker", speakerID)
	s.notifier.ProposalSubmitted(ctx, event, proposal)
	return proposal, nil
}

func meetsRequirements(event *models.Event, formats, categories []uuid.UUID) bool {
	if event.FormatsRequired && len(formats) == 0 {
		return false
	}
	if event.CategoriesRequired && len(categories) == 0 {
		return false
	}
	return true
}

// SaveTracks sets the formats and categories of the talk's proposal on the
// event. Ids that do not belong to the event are dropped.
func (s *ProposalService) SaveTracks(ctx context.Context, talkID, eventID, speakerID uuid.UUID, formats, categories []uuid.UUID) (*models.Proposal, error) {
	if formats == nil {
		formats = []uuid.UUID{}
	}
	if categories == nil {
		categories = []uuid.UUID{}
	}

	var proposal *models.Proposal
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		event, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if eventCFPState(event, s.now()) != models.CFPOpened {
			return ErrCfpNotOpen
		}
		if err := s.access.requireTalkSpeaker(ctx, tx, talkID, speakerID); err != nil {
			if errors.Is(err, ErrTalkNotFound) {
				return ErrProposalNotFound
			}
			return err
		}

		existing, err := getTalkProposal(ctx, tx, talkID, eventID)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrProposalNotFound
		}
		if existing.Status != models.StatusDraft && existing.Status != models.StatusSubmitted {
			return ErrProposalStateConflict
		}

		validFormats, err := collectIDs(ctx, tx, `
			SELECT id FROM event_formats WHERE event_id = $1 AND id = ANY($2)
		`, eventID, formats)
		if err != nil {
			return fmt.Errorf("failed to check formats: %w", err)
		}
		validCategories, err := collectIDs(ctx, tx, `
			SELECT id FROM event_categories WHERE event_id = $1 AND id = ANY($2)
		`, eventID, categories)
		if err != nil {
			return fmt.Errorf("failed to check categories: %w", err)
		}
		if validFormats == nil {
			validFormats = []uuid.UUID{}
		}
		if validCategories == nil {
			validCategories = []uuid.UUID{}
		}

		proposal, err = scanProposal(tx.QueryRow(ctx, `
			UPDATE proposals SET formats = $2, categories = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+proposalColumns,
			existing.ID, validFormats, validCategories))
		if err != nil {
			return fmt.Errorf("failed to save tracks: %w", err)
		}
		proposal.Speakers = existing.Speakers
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// OrganizerDecide accepts or rejects a submitted proposal. It sends nothing:
// speakers learn the outcome through the explicit campaigns.
func (s *ProposalService) OrganizerDecide(ctx context.Context, proposalID, actorID uuid.UUID, decision models.Decision) (*models.Proposal, error) {
	target, ok := decision.Status()
	if !ok {
		return nil, ErrInvalidInput
	}

	var proposal *models.Proposal
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanProposal(tx.QueryRow(ctx, `
			SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE
		`, proposalID))
		if err != nil {
			return notFound(err, ErrProposalNotFound, "load proposal")
		}
		event, err := getEvent(ctx, tx, current.EventID)
		if err != nil {
			return err
		}
		if _, err := s.access.requireTeamRole(ctx, tx, event.TeamID, actorID, models.OrganizerRoles); err != nil {
			if errors.Is(err, ErrTeamNotFound) {
				return ErrProposalNotFound
			}
			return err
		}

		switch current.Status {
		case models.StatusDraft:
			// Drafts are private to their speakers.
			return ErrProposalNotFound
		case models.StatusConfirmed, models.StatusDeclined:
			return ErrProposalStateConflict
		}
		if current.Status == target {
			proposal = current
			return nil
		}

		proposal, err = scanProposal(tx.QueryRow(ctx, `
			UPDATE proposals SET status = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+proposalColumns,
			proposalID, target))
		if err != nil {
			return fmt.Errorf("failed to update proposal status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("proposal decided", "proposal", proposalID, "status", proposal.Status, "actor", actorID)
	return proposal, nil
}

// SpeakerAnswer records the speakers' confirmation or decline of an accepted
// proposal. On any other status it does nothing and reports no error.
func (s *ProposalService) SpeakerAnswer(ctx context.Context, proposalID, speakerID uuid.UUID, answer models.Answer) error {
	target, ok := answer.Status()
	if !ok {
		return ErrInvalidInput
	}

	var event *models.Event
	var proposal *models.Proposal
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		current, err := s.access.speakerProposal(ctx, tx, proposalID, speakerID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusAccepted {
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE proposals SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`, proposalID, target, models.StatusAccepted)
		if err != nil {
			return fmt.Errorf("failed to answer proposal: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		event, err = getEvent(ctx, tx, current.EventID)
		if err != nil {
			return err
		}
		current.Status = target
		proposal = current
		return nil
	})
	if err != nil {
		return err
	}
	if proposal == nil {
		return nil
	}

	s.log.Infow("proposal answered", "proposal", proposalID, "status", proposal.Status, "speaker", speakerID)
	s.notifier.ProposalAnswered(ctx, event, proposal)
	return nil
}

// GetProposal returns a proposal to one of its speakers.
func (s *ProposalService) GetProposal(ctx context.Context, proposalID, speakerID uuid.UUID) (*models.Proposal, error) {
	if err := s.access.RequireProposalSpeaker(ctx, proposalID, speakerID); err != nil {
		return nil, err
	}
	p, err := scanProposal(s.db.Pool.QueryRow(ctx, `
		SELECT `+proposalColumns+` FROM proposals WHERE id = $1
	`, proposalID))
	if err != nil {
		return nil, notFound(err, ErrProposalNotFound, "load proposal")
	}
	p.Speakers, err = proposalSpeakers(ctx, s.db.Pool, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListEventProposals lists the non-draft proposals of an event for its team,
// optionally filtered by status.
func (s *ProposalService) ListEventProposals(ctx context.Context, teamSlug, eventSlug string, actorID uuid.UUID, status *models.ProposalStatus) ([]models.Proposal, error) {
	event, err := s.access.RequireEventRole(ctx, teamSlug, eventSlug, actorID, models.AllRoles...)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE event_id = $1 AND status <> 'DRAFT' AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at
	`, event.ID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// DeleteProposal removes a proposal on behalf of one of its speakers.
func (s *ProposalService) DeleteProposal(ctx context.Context, proposalID, actorID uuid.UUID) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.access.requireProposalSpeaker(ctx, tx, proposalID, actorID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM proposals WHERE id = $1`, proposalID)
		if err != nil {
			return fmt.Errorf("failed to delete proposal: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProposalNotFound
		}
		return nil
	})
}

// DeleteTalk removes a talk with its draft proposals. Proposals past DRAFT
// survive with their talk reference cleared.
func (s *ProposalService) DeleteTalk(ctx context.Context, talkID, actorID uuid.UUID) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.access.speakerTalk(ctx, tx, talkID, actorID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM proposals WHERE talk_id = $1 AND status = $2
		`, talkID, models.StatusDraft); err != nil {
			return fmt.Errorf("failed to delete draft proposals: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM talks WHERE id = $1`, talkID); err != nil {
			return fmt.Errorf("failed to delete talk: %w", err)
		}
		return nil
	})
}

// SetTalkArchived hides a talk from new submissions, or restores it.
func (s *ProposalService) SetTalkArchived(ctx context.Context, talkID, speakerID uuid.UUID, archived bool) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.access.requireTalkSpeaker(ctx, tx, talkID, speakerID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE talks SET archived = $2, updated_at = NOW() WHERE id = $1
		`, talkID, archived)
		if err != nil {
			return fmt.Errorf("failed to archive talk: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrTalkNotFound
		}
		return nil
	})
}

// RemoveTalkCoSpeaker removes coSpeakerID from the talk and from every live
// proposal derived from it. The talk creator cannot be removed.
func (s *ProposalService) RemoveTalkCoSpeaker(ctx context.Context, talkID, actorID, coSpeakerID uuid.UUID) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		talk, err := s.access.speakerTalk(ctx, tx, talkID, actorID)
		if err != nil {
			return err
		}
		return s.removeFromTalk(ctx, tx, talk, coSpeakerID)
	})
}

// RemoveProposalCoSpeaker removes coSpeakerID from the proposal and, when the
// proposal still has its talk, from the talk and its other live proposals.
func (s *ProposalService) RemoveProposalCoSpeaker(ctx context.Context, proposalID, actorID, coSpeakerID uuid.UUID) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockProposalTalk(ctx, tx, proposalID); err != nil {
			return err
		}
		proposal, err := s.access.speakerProposal(ctx, tx, proposalID, actorID)
		if err != nil {
			return err
		}
		remaining := without(proposal.Speakers, coSpeakerID)
		// A proposal never ends up without speakers.
		if len(remaining) == 0 {
			return ErrForbiddenOperation
		}
		if proposal.TalkID == nil {
			if len(remaining) == len(proposal.Speakers) {
				return nil
			}
			return replaceProposalSpeakers(ctx, tx, proposal.ID, remaining)
		}

		talk, err := scanTalk(tx.QueryRow(ctx, `
			SELECT `+talkColumns+` FROM talks WHERE id = $1 FOR UPDATE
		`, *proposal.TalkID))
		if err != nil {
			return notFound(err, ErrTalkNotFound, "load talk")
		}
		talk.Speakers, err = talkSpeakers(ctx, tx, talk.ID)
		if err != nil {
			return err
		}
		if err := s.removeFromTalk(ctx, tx, talk, coSpeakerID); err != nil {
			return err
		}

		// The proposal itself may be past the live statuses.
		if len(remaining) == len(proposal.Speakers) || proposal.Status.IsLive() {
			return nil
		}
		return replaceProposalSpeakers(ctx, tx, proposal.ID, remaining)
	})
}

func (s *ProposalService) removeFromTalk(ctx context.Context, tx pgx.Tx, talk *models.Talk, coSpeakerID uuid.UUID) error {
	if coSpeakerID == talk.CreatorID {
		return ErrForbiddenOperation
	}

	remaining := without(talk.Speakers, coSpeakerID)
	if len(remaining) != len(talk.Speakers) {
		if _, err := tx.Exec(ctx, `DELETE FROM talk_speakers WHERE talk_id = $1`, talk.ID); err != nil {
			return fmt.Errorf("failed to clear talk speakers: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO talk_speakers (talk_id, user_id)
			SELECT $1::uuid, unnest($2::uuid[])
		`, talk.ID, remaining); err != nil {
			return fmt.Errorf("failed to set talk speakers: %w", err)
		}
	}

	proposalIDs, err := collectIDs(ctx, tx, `
		SELECT id FROM proposals WHERE talk_id = $1 AND status = ANY($2) FOR UPDATE
	`, talk.ID, liveStatuses)
	if err != nil {
		return fmt.Errorf("failed to load live proposals: %w", err)
	}
	for _, id := range proposalIDs {
		speakers, err := proposalSpeakers(ctx, tx, id)
		if err != nil {
			return err
		}
		next := without(speakers, coSpeakerID)
		if len(next) == len(speakers) {
			continue
		}
		if err := replaceProposalSpeakers(ctx, tx, id, next); err != nil {
			return err
		}
	}
	return nil
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
