package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-multierror"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/autoposter/configs"
	job "github.com/maheshrc27/autoposter/internal/jobs"
	"github.com/maheshrc27/autoposter/internal/models"
	"github.com/maheshrc27/autoposter/internal/queue"
	"github.com/maheshrc27/autoposter/internal/repository"
	"github.com/maheshrc27/autoposter/internal/service"
	"github.com/maheshrc27/autoposter/pkg/utils"
)

const tokenRefreshSpec = "@every 00h10m00s"

// AppState is everything the bot needs, built once at startup.
type AppState struct {
	Config *config.Config
	Rand   utils.Rand
	Now    func() time.Time

	DB       *sql.DB
	Usage    repository.UsageRepository
	Seen     repository.SeenRepository
	Slots    repository.SlotRepository
	History  repository.PostingHistoryRepository
	Sessions repository.SessionRepository

	R2         *service.R2Service
	Blob       service.BlobStore
	Content    service.ContentService
	Remote     *service.RemotePool
	Tokens     service.TokenManager
	Publisher  service.Publisher
	Candidates service.CandidateService
	Planner    service.SchedulePlanner
	Posts      service.PostService

	Runner     *queue.SlotRunner
	Dispatcher queue.Dispatcher
	PlanJob    *job.PlanJob
	TokenJob   *job.TokenRefreshJob
}

func New(ctx context.Context, cfg *config.Config) (*AppState, error) {
	a := &AppState{
		Config: cfg,
		Rand:   utils.NewRand(cfg.RandomSeed),
		Now:    time.Now,
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	names := documentNames(cfg.State)
	a.Usage = repository.NewUsageRepository(store, names.usage, a.Now)
	a.Seen = repository.NewSeenRepository(store, names.seen, a.Now)
	a.Slots = repository.NewSlotRepository(store, names.slots)
	a.History = repository.NewPostingHistoryRepository(store, names.history, cfg.State.HistoryLimit)
	a.Sessions = repository.NewSessionRepository(store, names.session, cfg.SecretKey)

	loaders := map[string]func(context.Context) error{
		"usage ledger":    a.Usage.Load,
		"seen registry":   a.Seen.Load,
		"schedule slots":  a.Slots.Load,
		"posting history": a.History.Load,
	}
	for name, load := range loaders {
		if err := load(ctx); err != nil {
			slog.Warn("Failed to load state, starting empty", "document", name, "error", err)
		}
	}

	if a.R2, err = service.NewR2Service(ctx, cfg.R2); err != nil {
		a.Close()
		return nil, err
	}
	switch cfg.BlobBackend {
	case config.BlobBackendR2:
		a.Blob = service.NewR2BlobStore(a.R2)
	case config.BlobBackendDrive:
		if a.Blob, err = service.NewDriveService(ctx, cfg.Drive); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Tokens = service.NewInstagramTokenSource(cfg.Instagram, a.Sessions, &http.Client{Timeout: 30 * time.Second}, a.Now)
	igClient := service.NewAuthorizedClient(a.Tokens, http.DefaultTransport)
	a.Publisher = service.NewInstagramService(cfg.Instagram, service.NewR2Stager(a.R2), igClient, nil)

	a.Content = service.NewContentService(cfg.Content, &http.Client{}, nil)
	a.Remote = service.NewRemotePool()
	a.Candidates = service.NewCandidateService(cfg.PriorityMode, cfg.UsageQuota, a.Usage, a.Seen, a.Rand, cfg.Media.PlaceholderPath)
	a.Planner = service.NewSchedulePlanner(cfg.Schedule, a.Rand, nil)
	a.Posts = service.NewPostService(cfg.Media, cfg.UsageQuota, service.PostServiceDeps{
		Candidates: a.Candidates,
		Usage:      a.Usage,
		History:    a.History,
		Local:      service.NewLocalMediaService(cfg.Media.LocalDir),
		Blob:       a.Blob,
		Content:    a.Content,
		Remote:     a.Remote,
		Media:      service.NewMediaService(cfg.Media),
		Captions:   service.NewCaptionService(cfg.Caption, a.Rand, a.Now),
		Publisher:  a.Publisher,
		Now:        a.Now,
	})

	a.Runner = queue.NewSlotRunner(cfg.Schedule, a.Slots, a.Planner, a.Posts, a.Now, nil)
	if cfg.Dispatcher == config.DispatcherAsynq {
		redisConn, err := redisConnOpt(cfg.RedisURI)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Dispatcher = queue.NewAsynqDispatcher(redisConn, a.Runner)
	} else {
		a.Dispatcher = queue.NewLocalDispatcher(a.Runner, a.Now)
	}

	a.PlanJob = job.NewPlanJob(cfg, a.Planner, a.Slots, a.Seen, a.Content, a.Remote, a.Dispatcher, a.Now)
	a.TokenJob = job.NewTokenRefreshJob(a.Tokens)
	return a, nil
}

// RunScheduler re-arms persisted slots, plans the current cycle and keeps
// firing slots until ctx is done.
func (a *AppState) RunScheduler(ctx context.Context) error {
	loc := a.Config.Schedule.Location
	if loc == nil {
		loc = time.Local
	}
	c := cron.NewWithLocation(loc)
	if err := c.AddFunc(a.Config.Schedule.PlanCron, a.PlanJob.PlanCycle); err != nil {
		return fmt.Errorf("invalid PLAN_CRON %q: %w", a.Config.Schedule.PlanCron, err)
	}
	if err := c.AddFunc(tokenRefreshSpec, a.TokenJob.RefreshTokens); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Dispatcher.Run(ctx) }()

	a.TokenJob.RefreshTokens()
	a.PlanJob.Recover(ctx)
	if err := a.PlanJob.Run(ctx); err != nil {
		slog.Error("Initial planning failed", "error", err)
	}

	select {
	case <-ctx.Done():
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// RunOnce posts immediately, outside the schedule.
func (a *AppState) RunOnce(ctx context.Context) models.PostOutcome {
	a.PlanJob.RefreshRemotePool(ctx)

	id, err := gonanoid.New()
	if err != nil {
		id = "manual"
	}
	slot := models.ScheduleSlot{ID: "manual-" + id, FiringTime: a.Now(), Status: models.SlotStatusPending}
	return a.Posts.ExecutePost(ctx, slot)
}

// ImportMedia uploads files into the blob library so they join the owned pool.
func (a *AppState) ImportMedia(ctx context.Context, paths []string) error {
	if a.Blob == nil {
		return errors.New("no blob backend configured")
	}
	var result error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		kind, err := filetype.Match(data)
		if err != nil || !(strings.HasPrefix(kind.MIME.Type, "image") || strings.HasPrefix(kind.MIME.Type, "video")) {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported media type", p))
			continue
		}
		id, err := a.Blob.Upload(ctx, filepath.Base(p), data, kind.MIME.Value)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("upload %s: %w", p, err))
			continue
		}
		slog.Info("Imported media", "path", p, "id", id)
	}
	return result
}

func (a *AppState) Close() error {
	var result error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}
	return result
}

func (a *AppState) openStore(ctx context.Context) (repository.DocumentStore, error) {
	if a.Config.State.Backend != config.StateBackendPostgres {
		return repository.NewFileDocumentStore(), nil
	}

	db, err := sql.Open("postgres", a.Config.State.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	if err := repository.EnsureDocumentSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	a.DB = db
	return repository.NewPostgresDocumentStore(db), nil
}

type docNames struct {
	usage, seen, slots, history, session string
}

// documentNames maps the configured files to document names. Postgres rows
// are keyed by the bare file name without extension.
func documentNames(s config.State) docNames {
	name := func(path string) string {
		if s.Backend != config.StateBackendPostgres {
			return path
		}
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return docNames{
		usage:   name(s.UsageFile),
		seen:    name(s.SeenFile),
		slots:   name(s.SlotsFile),
		history: name(s.HistoryFile),
		session: name(s.SessionFile),
	}
}

func redisConnOpt(uri string) (asynq.RedisConnOpt, error) {
	if strings.Contains(uri, "://") {
		opt, err := asynq.ParseRedisURI(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URI: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: uri}, nil
}
