package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type NotificationOptions struct {
	// From is the sender address of every email. Empty lets the mailer pick its default.
	From string
	// Timeout bounds each single email delivery.
	Timeout time.Duration
	// SlackTimeout bounds each webhook post.
	SlackTimeout time.Duration
	// Concurrency bounds parallel deliveries within one campaign.
	Concurrency int
}

// NotificationService sends transactional notifications on proposal transitions
// and runs the acceptance / rejection campaigns.
type NotificationService struct {
	db     *database.DB
	access *AccessGuard
	mailer Mailer
	poster WebhookPoster
	log    *zap.SugaredLogger
	opts   NotificationOptions
}

func NewNotificationService(db *database.DB, access *AccessGuard, mailer Mailer, poster WebhookPoster, log *zap.SugaredLogger, opts NotificationOptions) *NotificationService {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SlackTimeout <= 0 {
		opts.SlackTimeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &NotificationService{db: db, access: access, mailer: mailer, poster: poster, log: log, opts: opts}
}

type campaignKind struct {
	name   string
	status models.ProposalStatus
	column string
}

var (
	acceptanceCampaign = campaignKind{name: "acceptance", status: models.StatusAccepted, column: "email_accepted_status"}
	rejectionCampaign  = campaignKind{name: "rejection", status: models.StatusRejected, column: "email_rejected_status"}
)

type CampaignResult struct {
	// Proposals marked SENT by this run.
	Sent []uuid.UUID `json:"sent"`
	// Proposals whose every recipient failed; they are left unmarked for a later run.
	Released []uuid.UUID `json:"released"`
	// Recipients whose delivery failed.
	FailedRecipients []string `json:"failed_recipients"`
}

// SendAcceptanceCampaign emails every speaker of the event's accepted proposals
// (or of the given subset) once, listing all their accepted talks.
// Proposals already notified are skipped, so running it again is a no-op.
func (s *NotificationService) SendAcceptanceCampaign(ctx context.Context, teamSlug, eventSlug string, actorID uuid.UUID, proposalIDs []uuid.UUID) (*CampaignResult, error) {
	return s.runCampaign(ctx, acceptanceCampaign, teamSlug, eventSlug, actorID, proposalIDs)
}

// SendRejectionCampaign is the rejected-proposals counterpart of SendAcceptanceCampaign.
func (s *NotificationService) SendRejectionCampaign(ctx context.Context, teamSlug, eventSlug string, actorID uuid.UUID, proposalIDs []uuid.UUID) (*CampaignResult, error) {
	return s.runCampaign(ctx, rejectionCampaign, teamSlug, eventSlug, actorID, proposalIDs)
}

type campaignRecipient struct {
	user      models.User
	proposals []uuid.UUID
	titles    []string
}

func (s *NotificationService) runCampaign(ctx context.Context, kind campaignKind, teamSlug, eventSlug string, actorID uuid.UUID, proposalIDs []uuid.UUID) (*CampaignResult, error) {
	event, err := s.access.RequireEventRole(ctx, teamSlug, eventSlug, actorID, models.OrganizerRoles...)
	if err != nil {
		return nil, err
	}
	if proposalIDs == nil {
		proposalIDs = []uuid.UUID{}
	}

	// Claiming flips NULL to PENDING in one statement: concurrent runs never claim the same proposal.
	claimed := make(map[uuid.UUID]string)
	var claimedIDs []uuid.UUID
	rows, err := s.db.Pool.Query(ctx, fmt.Sprintf(`
		UPDATE proposals SET %[1]s = $3, updated_at = NOW()
		WHERE event_id = $1 AND status = $2 AND %[1]s IS NULL
		AND (cardinality($4::uuid[]) = 0 OR id = ANY($4))
		RETURNING id, title
	`, kind.column), event.ID, kind.status, models.EmailPending, proposalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to claim proposals: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claimed proposal: %w", err)
		}
		claimed[id] = title
		claimedIDs = append(claimedIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to claim proposals: %w", err)
	}

	result := &CampaignResult{}
	if len(claimed) == 0 {
		s.log.Infow("campaign has nothing to send", "campaign", kind.name, "event", event.Slug)
		return result, nil
	}

	// The claim is committed: whatever happens to ctx from here, outcomes must be recorded.
	persistCtx := context.WithoutCancel(ctx)

	recipients, err := s.campaignRecipients(ctx, claimedIDs, claimed)
	if err != nil {
		s.release(persistCtx, kind, claimedIDs)
		return nil, err
	}

	delivered := make(map[uuid.UUID]bool, len(claimed))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			msg, err := campaignEmail(kind, event, r)
			if err == nil {
				err = s.deliver(ctx, msg)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedRecipients = append(result.FailedRecipients, r.user.Email)
				s.log.Warnw("campaign email failed", "campaign", kind.name, "event", event.Slug, "recipient", r.user.Email, "error", err)
				return nil
			}
			for _, id := range r.proposals {
				delivered[id] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range claimedIDs {
		if delivered[id] {
			result.Sent = append(result.Sent, id)
		} else {
			result.Released = append(result.Released, id)
		}
	}
	sort.Strings(result.FailedRecipients)

	if len(result.Sent) > 0 {
		_, err := s.db.Pool.Exec(persistCtx, fmt.Sprintf(`
			UPDATE proposals SET %[1]s = $2, updated_at = NOW()
			WHERE id = ANY($1) AND %[1]s = $3
		`, kind.column), result.Sent, models.EmailSent, models.EmailPending)
		if err != nil {
			return result, fmt.Errorf("failed to mark proposals as sent: %w", err)
		}
	}
	s.release(persistCtx, kind, result.Released)

	s.log.Infow("campaign finished", "campaign", kind.name, "event", event.Slug,
		"sent", len(result.Sent), "released", len(result.Released), "failed_recipients", len(result.FailedRecipients))
	return result, nil
}

// campaignRecipients groups claimed proposals by speaker.
func (s *NotificationService) campaignRecipients(ctx context.Context, proposalIDs []uuid.UUID, titles map[uuid.UUID]string) ([]*campaignRecipient, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT ps.proposal_id, u.id, u.email, u.name
		FROM proposal_speakers ps
		JOIN users u ON u.id = ps.user_id
		WHERE ps.proposal_id = ANY($1)
		ORDER BY u.email
	`, proposalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign recipients: %w", err)
	}
	defer rows.Close()

	byUser := make(map[uuid.UUID]*campaignRecipient)
	var ordered []*campaignRecipient
	for rows.Next() {
		var proposalID uuid.UUID
		var u models.User
		if err := rows.Scan(&proposalID, &u.ID, &u.Email, &u.Name); err != nil {
			return nil, fmt.Errorf("failed to scan campaign recipient: %w", err)
		}
		r, ok := byUser[u.ID]
		if !ok {
			r = &campaignRecipient{user: u}
			byUser[u.ID] = r
			ordered = append(ordered, r)
		}
		r.proposals = append(r.proposals, proposalID)
		r.titles = append(r.titles, titles[proposalID])
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load campaign recipients: %w", err)
	}
	return ordered, nil
}

func (s *NotificationService) release(ctx context.Context, kind campaignKind, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	_, err := s.db.Pool.Exec(ctx, fmt.Sprintf(`
		UPDATE proposals SET %[1]s = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND %[1]s = $2
	`, kind.column), ids, models.EmailPending)
	if err != nil {
		s.log.Errorw("failed to release campaign claims", "campaign", kind.name, "proposals", ids, "error", err)
	}
}

func campaignEmail(kind campaignKind, event *models.Event, r *campaignRecipient) (Email, error) {
	data := emailData{Name: r.user.Name, Titles: r.titles, Event: event.Name}
	subject := fmt.Sprintf("[%s] Your talk has been declined", event.Name)
	tmpl := "rejected"
	if kind.status == models.StatusAccepted {
		subject = fmt.Sprintf("[%s] Your talk has been accepted", event.Name)
		tmpl = "accepted"
	}
	body, err := renderEmail(tmpl, data)
	if err != nil {
		return Email{}, err
	}
	return Email{To: r.user.Email, Subject: subject, Body: body}, nil
}

func (s *NotificationService) deliver(ctx context.Context, msg Email) error {
	if msg.From == "" {
		msg.From = s.opts.From
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.mailer.Send(ctx, msg)
}

// ProposalSubmitted confirms the submission to its speakers, tells the organizer
// contact when the event asks for it, and posts to the event's Slack webhook.
// Failures are logged only; the submission is already committed.
func (s *NotificationService) ProposalSubmitted(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	speakers, err := s.loadUsers(ctx, proposal.Speakers)
	if err != nil {
		s.log.Warnw("failed to load speakers for submission emails", "proposal", proposal.ID, "error", err)
	}
	names := make([]string, 0, len(speakers))
	for _, u := range speakers {
		names = append(names, u.Name)
		body, err := renderEmail("submitted_speaker", emailData{Name: u.Name, Title: proposal.Title, Event: event.Name})
		if err == nil {
			err = s.deliver(ctx, Email{
				To:      u.Email,
				Subject: fmt.Sprintf("[%s] Submission confirmed", event.Name),
				Body:    body,
			})
		}
		if err != nil {
			s.log.Warnw("submission email failed", "proposal", proposal.ID, "recipient", u.Email, "error", err)
		}
	}

	if event.NotifiesOrganizer(models.NotifySubmitted) {
		body, err := renderEmail("submitted_organizer", emailData{Title: proposal.Title, Speakers: strings.Join(names, " & ")})
		if err == nil {
			err = s.deliver(ctx, Email{
				To:      *event.EmailOrganizer,
				Subject: fmt.Sprintf("[%s] New proposal received", event.Name),
				Body:    body,
			})
		}
		if err != nil {
			s.log.Warnw("organizer submission email failed", "proposal", proposal.ID, "error", err)
		}
	}

	if event.HasSlackWebhook() {
		postCtx, cancel := context.WithTimeout(ctx, s.opts.SlackTimeout)
		defer cancel()
		err := s.poster.Post(postCtx, *event.SlackWebhookURL, SlackMessage{
			Attachments: []SlackAttachment{{
				Fallback: fmt.Sprintf("New proposal: %s", proposal.Title),
				Color:    "#ffab00",
				Title:    proposal.Title,
				Text:     proposal.Abstract,
				Fields: []SlackField{
					{Title: "Speakers", Value: strings.Join(names, " & "), Short: true},
					{Title: "Event", Value: event.Name, Short: true},
				},
			}},
		})
		if err != nil {
			s.log.Warnw("slack notification failed", "proposal", proposal.ID, "event", event.Slug, "error", err)
		}
	}
}

// ProposalAnswered tells the organizer contact that speakers confirmed or declined,
// when the event has that notification enabled.
func (s *NotificationService) ProposalAnswered(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	var kind, verb string
	switch proposal.Status {
	case models.StatusConfirmed:
		kind, verb = models.NotifyConfirmed, "confirmed"
	case models.StatusDeclined:
		kind, verb = models.NotifyDeclined, "declined"
	default:
		return
	}
	if !event.NotifiesOrganizer(kind) {
		return
	}
	body, err := renderEmail("answered", emailData{Title: proposal.Title, Verb: verb})
	if err == nil {
		err = s.deliver(ctx, Email{
			To:      *event.EmailOrganizer,
			Subject: fmt.Sprintf("[%s] Talk %s by speaker", event.Name, verb),
			Body:    body,
		})
	}
	if err != nil {
		s.log.Warnw("organizer answer email failed", "proposal", proposal.ID, "status", proposal.Status, "error", err)
	}
}

func (s *NotificationService) loadUsers(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, email, name FROM users WHERE id = ANY($1) ORDER BY name
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
