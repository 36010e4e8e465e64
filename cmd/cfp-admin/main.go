package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/confhall/cfp-engine/internal/config"
	"github.com/confhall/cfp-engine/internal/database"
	"github.com/confhall/cfp-engine/internal/models"
	"github.com/confhall/cfp-engine/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const usage = `Usage: cfp-admin [-debug] <command> [args]

Commands:
  migrate
  list <team> <event> <actor-id> [status]
  decide <proposal-id> <actor-id> accept|reject
  campaign accepted|rejected <team> <event> <actor-id> [proposal-id...]
  invite <talk|proposal|team> <entity-id> <requester-id>
`

type app struct {
	db        *database.DB
	log       *zap.SugaredLogger
	proposals *services.ProposalService
	notifier  *services.NotificationService
	invites   *services.InviteService
}

func main() {
	os.Exit(execute())
}

// execute runs the CLI and returns the exit code, so deferred cleanup runs
// before the process exits.
func execute() int {
	debug := flag.Bool("debug", false, "development logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	var zcfg zap.Config
	if *debug || !cfg.IsProduction() {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		log.Errorw("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	a := newApp(cfg, db, log)
	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			return 2
		}
		log.Errorw("command failed", "command", flag.Arg(0), "error", err)
		return 1
	}
	return 0
}

func newApp(cfg *config.Config, db *database.DB, log *zap.SugaredLogger) *app {
	access := services.NewAccessGuard(db)
	quota := services.NewQuotaGuard(db)
	mailer := services.NewEmailService(cfg.SMTP)
	if !mailer.IsConfigured() {
		log.Warn("SMTP is not configured, emails will be dropped")
	}
	slack := services.NewSlackService(&http.Client{Timeout: cfg.SlackTimeout})
	notifier := services.NewNotificationService(db, access, mailer, slack, log.Named("notify"), services.NotificationOptions{
		From:         cfg.SMTP.From,
		Timeout:      cfg.NotifyTimeout,
		SlackTimeout: cfg.SlackTimeout,
		Concurrency:  cfg.NotifyConcurrency,
	})

	return &app{
		db:        db,
		log:       log,
		proposals: services.NewProposalService(db, access, quota, notifier, log.Named("proposals")),
		notifier:  notifier,
		invites:   services.NewInviteService(db, access, cfg.AppURL),
	}
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "migrate":
		if err := a.db.Migrate(ctx); err != nil {
			return err
		}
		a.log.Info("migrations applied")
		return nil
	case "list":
		return a.list(ctx, args[1:])
	case "decide":
		return a.decide(ctx, args[1:])
	case "campaign":
		return a.campaign(ctx, args[1:])
	case "invite":
		return a.invite(ctx, args[1:])
	}
	return errUsage
}

func (a *app) list(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errUsage
	}
	actorID, err := uuid.Parse(args[2])
	if err != nil {
		return fmt.Errorf("invalid actor id: %w", err)
	}
	var status *models.ProposalStatus
	if len(args) == 4 {
		s := models.ProposalStatus(strings.ToUpper(args[3]))
		status = &s
	}

	proposals, err := a.proposals.ListEventProposals(ctx, args[0], args[1], actorID, status)
	if err != nil {
		return err
	}
	for _, p := range proposals {
		fmt.Printf("%s\t%-9s\t%s\n", p.ID, p.Status, p.Title)
	}
	return nil
}

func (a *app) decide(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	proposalID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid proposal id: %w", err)
	}
	actorID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid actor id: %w", err)
	}

	p, err := a.proposals.OrganizerDecide(ctx, proposalID, actorID, models.Decision(strings.ToUpper(args[2])))
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", p.Title, p.Status)
	return nil
}

func (a *app) campaign(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return errUsage
	}
	actorID, err := uuid.Parse(args[3])
	if err != nil {
		return fmt.Errorf("invalid actor id: %w", err)
	}
	var subset []uuid.UUID
	for _, raw := range args[4:] {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid proposal id %q: %w", raw, err)
		}
		subset = append(subset, id)
	}

	var result *services.CampaignResult
	switch args[0] {
	case "accepted":
		result, err = a.notifier.SendAcceptanceCampaign(ctx, args[1], args[2], actorID, subset)
	case "rejected":
		result, err = a.notifier.SendRejectionCampaign(ctx, args[1], args[2], actorID, subset)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	fmt.Printf("sent: %d, released: %d\n", len(result.Sent), len(result.Released))
	for _, r := range result.FailedRecipients {
		fmt.Printf("failed: %s\n", r)
	}
	return nil
}

func (a *app) invite(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	entityID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid entity id: %w", err)
	}
	requesterID, err := uuid.Parse(args[2])
	if err != nil {
		return fmt.Errorf("invalid requester id: %w", err)
	}

	token, err := a.invites.GetOrCreate(ctx, models.InviteEntity(strings.ToUpper(args[0])), entityID, requesterID)
	if err != nil {
		return err
	}
	fmt.Println(a.invites.InviteURL(token))
	return nil
}
