package cli

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/scoutbot/internal/analysis"
	"github.com/soyeahso/scoutbot/internal/auth"
	"github.com/soyeahso/scoutbot/internal/channel"
	"github.com/soyeahso/scoutbot/internal/channel/irc"
	"github.com/soyeahso/scoutbot/internal/chatctx"
	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/dialogue"
	"github.com/soyeahso/scoutbot/internal/extract"
	"github.com/soyeahso/scoutbot/internal/gateway"
	"github.com/soyeahso/scoutbot/internal/hooks"
	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/mailer"
	"github.com/soyeahso/scoutbot/internal/prompts"
	"github.com/soyeahso/scoutbot/internal/store"
)

const (
	// sessionIdle is how long an untouched dialogue session is kept.
	sessionIdle = 24 * time.Hour
	stopTimeout = 10 * time.Second
)

// app is the assembled bot: every collaborator built from one Config.
type app struct {
	cfg       config.Config
	log       *logging.Logger
	db        *store.DB
	templates *prompts.Templates
	topics    *prompts.TopicRegistry
	directory auth.Directory
	models    *llm.Registry
	hooks     *hooks.Manager
	history   *chatctx.Manager
	service   *dialogue.Service
	channels  *channel.Registry
	inbox     *channel.Inbox
}

// buildApp wires the collaborators. The caller must call close.
func buildApp(ctx context.Context, cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	db, err := store.Open(p.Database(cfg.Store), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db}
	if err := a.wire(ctx, p); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, p config.Paths) error {
	cfg := a.cfg

	tstore, err := openTemplateStore(cfg.Prompts, p, a.db)
	if err != nil {
		return err
	}
	a.templates = prompts.NewTemplates(tstore, a.log)
	seeded, err := a.templates.Seed()
	if err != nil {
		return fmt.Errorf("seeding templates: %w", err)
	}
	if len(seeded) > 0 {
		a.log.Info().Strs("keys", seeded).Msg("seeded default templates")
	}

	a.topics = prompts.NewTopicRegistry()
	restored, err := prompts.RestoreTopics(a.topics, a.templates)
	if err != nil {
		return fmt.Errorf("restoring topics: %w", err)
	}
	if restored > 0 {
		a.log.Info().Int("count", restored).Msg("restored runtime topics")
	}

	a.directory, err = openDirectory(ctx, cfg, a.db)
	if err != nil {
		return err
	}

	a.models = llm.NewRegistryFromConfig(ctx, cfg.Models, a.log)
	if a.models.Len() == 0 {
		a.log.Warn().Msg("no model backends available, analyses will fail")
	}

	mail, err := mailer.New(ctx, cfg.Mail, a.log)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	a.hooks = hooks.NewManager(a.log)
	if n := hooks.RegisterConfigured(a.hooks, cfg.Hooks); n > 0 {
		a.log.Info().Int("count", n).Msg("registered command hooks")
	}
	a.hooks.On(hooks.EventReportDelivered, "report-log", store.NewReportLog(a.db).Hook())

	a.history = chatctx.NewManager(seconds(cfg.ChatCtx.GraceSeconds), a.log)
	pipeline := analysis.NewPipeline(a.history, a.templates, cfg.Dialogue.MaxAttachmentChars, a.log)

	machine := dialogue.NewMachine(dialogue.Deps{
		Directory: a.directory,
		Analyzer:  pipeline,
		History:   a.history,
		Models:    a.models,
		Topics:    a.topics,
		Templates: a.templates,
		Extractor: extract.New(),
		Mailer:    mail,
		Hooks:     a.hooks,
	}, dialogue.Options{
		Operator:     cfg.Dialogue.Operator,
		Admins:       cfg.Dialogue.Admins,
		DefaultTopic: cfg.Dialogue.DefaultTopic,
		BlockRunes:   cfg.Dialogue.ReportBlockRunes,
	}, a.log)

	a.channels = channel.NewRegistry(a.log)
	a.service = dialogue.NewService(machine, a.channels, dialogue.ServiceOptions{
		Blocked: cfg.Dialogue.Blocked,
		Timeout: seconds(cfg.Dialogue.PipelineTimeoutSeconds),
	}, a.log)

	if cfg.Channels.IRC != nil {
		a.channels.Register(irc.New(*cfg.Channels.IRC, a.log))
	}
	if cfg.Gateway.Enabled {
		a.channels.Register(gateway.New(cfg.Gateway, a.log,
			gateway.WithSessions(a.service),
			gateway.WithChannels(a.channels),
			gateway.WithHooks(a.hooks),
		))
	}
	a.inbox = channel.NewInbox(a.service, a.log)
	return nil
}

// run starts the channels and background sweepers, blocks until ctx is
// done, then stops the channels and drains in-flight events and hooks.
func (a *app) run(ctx context.Context) error {
	if a.channels.Count() == 0 {
		return fmt.Errorf("no channels configured: enable the gateway or configure IRC")
	}
	a.channels.Attach(ctx, a.inbox)

	interval := seconds(a.cfg.ChatCtx.CleanupIntervalSeconds)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.history.Run(gctx, interval)
		return nil
	})
	g.Go(func() error {
		a.service.Run(gctx, interval, sessionIdle)
		return nil
	})

	a.channels.StartAll(gctx)
	a.log.Info().Strs("channels", a.channels.List()).Int("models", a.models.Len()).Msg("scoutbot running")

	<-gctx.Done()
	a.log.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	a.channels.StopAll(stopCtx)
	a.inbox.Wait()
	a.hooks.Wait()
	return g.Wait()
}

func (a *app) close() error {
	return a.db.Close()
}

// openTemplateStore selects the template backend for cfg.Store.
func openTemplateStore(cfg config.PromptsConfig, p config.Paths, db *store.DB) (prompts.TemplateStore, error) {
	switch cfg.Store {
	case "", "files":
		fileStore, err := prompts.NewFileStore(p.PromptDir(cfg))
		if err != nil {
			return nil, fmt.Errorf("prompt directory: %w", err)
		}
		return fileStore, nil
	case "sqlite":
		return store.NewTemplateStore(db), nil
	default:
		return nil, fmt.Errorf("unknown prompts store %q", cfg.Store)
	}
}

// openDirectory selects the authorization directory. The sqlite directory
// is seeded with the configured users, admins and operator on every start.
func openDirectory(ctx context.Context, cfg config.Config, db *store.DB) (auth.Directory, error) {
	switch cfg.Auth.Directory {
	case "", "static":
		return auth.NewStatic(cfg.Auth, cfg.Dialogue), nil
	case "sqlite":
		dir := store.NewUserDirectory(db)
		ids := append(append([]string{}, cfg.Auth.Users...), cfg.Dialogue.Admins...)
		if cfg.Dialogue.Operator != "" {
			ids = append(ids, cfg.Dialogue.Operator)
		}
		for _, id := range ids {
			if err := dir.Grant(ctx, id); err != nil {
				return nil, err
			}
		}
		for id, email := range cfg.Auth.Emails {
			if err := dir.SetEmail(ctx, id, email); err != nil {
				return nil, err
			}
		}
		return dir, nil
	default:
		return nil, fmt.Errorf("unknown auth directory %q", cfg.Auth.Directory)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
