package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/channel/adapters/slack"
	"github.com/memohai/jester/internal/channel/inbound"
	"github.com/memohai/jester/internal/chat"
	"github.com/memohai/jester/internal/config"
	"github.com/memohai/jester/internal/conversation"
	"github.com/memohai/jester/internal/handlers"
	"github.com/memohai/jester/internal/healthcheck"
	cachechecker "github.com/memohai/jester/internal/healthcheck/checkers/cache"
	channelchecker "github.com/memohai/jester/internal/healthcheck/checkers/channel"
	"github.com/memohai/jester/internal/history"
	"github.com/memohai/jester/internal/logger"
	"github.com/memohai/jester/internal/media"
	"github.com/memohai/jester/internal/preview"
	"github.com/memohai/jester/internal/server"
	"github.com/memohai/jester/internal/version"
)

const connectTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Slack and start replying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(serveOptions(opts)...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func serveOptions(opts *rootOptions) []fx.Option {
	return []fx.Option{
		fx.Provide(
			func() (config.Config, error) { return provideConfig(opts) },
			provideLogger,
			provideMediaFetcher,
			provideSlackClient,
			provideSlackAdapter,
			provideDirectory,
			providePreviewCache,
			provideHistoryStore,
			provideGenerator,
			providePrompts,
			provideCoordinator,
			provideRouter,
			provideCheckers,
			provideReporter,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideStatusHandler),
			provideServer,
		),
		fx.Invoke(
			startBanner,
			startPreload,
			startAdapter,
			startReporter,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	}
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ValidateServe(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMediaFetcher(cfg config.Config) *media.Fetcher {
	return media.NewFetcher(nil, cfg.History.MaxImageBytes, cfg.History.FetchTimeout)
}

func provideSlackClient(cfg config.Config, files *media.Fetcher) *slack.Client {
	return slack.NewClient(slack.ClientOptions{
		BaseURL:  cfg.Slack.BaseURL,
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		SendRate: cfg.Slack.SendRatePerSecond,
		Files:    files,
	})
}

func provideSlackAdapter(log *slog.Logger, client *slack.Client) (*slack.Adapter, error) {
	adapter := slack.NewAdapter(log, client)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if _, err := adapter.Connect(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}

func provideDirectory(cfg config.Config, adapter *slack.Adapter) (*channel.Directory, error) {
	dir, err := channel.NewDirectory(cfg.Directory.Users, cfg.Directory.KnownChannels, cfg.Directory.FreeChannels)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	if err := dir.AddUser(cfg.Slack.BotName, adapter.Identity().UserID); err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return dir, nil
}

func providePreviewCache(log *slog.Logger, cfg config.Config) *preview.Cache {
	var browser preview.Browser
	if cfg.Preview.Enabled {
		browser = preview.NewChromeBrowser(preview.ChromeOptions{
			ExecPath: cfg.Preview.ChromePath,
			Width:    cfg.Preview.ViewportWidth,
			Height:   cfg.Preview.ViewportHeight,
		})
	}
	return preview.NewCache(log, browser, cfg.Preview.SettleDelay)
}

func provideHistoryStore(log *slog.Logger, cfg config.Config, adapter *slack.Adapter, cache *preview.Cache) *history.Store {
	opts := history.Options{
		PageSize:      cfg.History.PageSize,
		BackfillCount: cfg.History.BackfillCount,
		Files:         adapter,
	}
	if cfg.Preview.Enabled {
		opts.Previews = cache
	}
	return history.NewStore(log, adapter, opts)
}

func provideGenerator(log *slog.Logger, cfg config.Config, images *media.Fetcher) (chat.Generator, error) {
	return chat.NewGenerator(context.Background(), log, cfg.Model, images)
}

func providePrompts(cfg config.Config) (*chat.Prompts, error) {
	return chat.NewPrompts(cfg.Reply.Persona, cfg.Reply.Instruction)
}

func provideCoordinator(log *slog.Logger, cfg config.Config, store *history.Store, dir *channel.Directory, gen chat.Generator, adapter *slack.Adapter, prompts *chat.Prompts) *conversation.Coordinator {
	return conversation.NewCoordinator(log, store, dir, gen, adapter, prompts, conversation.Options{
		BotName:                  cfg.Slack.BotName,
		BotUserID:                adapter.Identity().UserID,
		Temperature:              cfg.Model.Temperature,
		FallbackText:             cfg.Model.FallbackText,
		MentionBypassesStaleness: cfg.Reply.MentionBypassesStaleness,
		MaxTurnBytes:             cfg.Reply.MaxTurnBytes,
	})
}

func provideRouter(log *slog.Logger, store *history.Store, dir *channel.Directory, coord *conversation.Coordinator, adapter *slack.Adapter) *inbound.Router {
	return inbound.NewRouter(log, store, dir, coord, adapter.Identity())
}

func provideCheckers(log *slog.Logger, adapter *slack.Adapter, store *history.Store, cache *preview.Cache) []healthcheck.Checker {
	return []healthcheck.Checker{
		channelchecker.NewChecker(log, adapter),
		cachechecker.NewChecker(store, cache),
	}
}

func provideReporter(log *slog.Logger, cfg config.Config, checkers []healthcheck.Checker) (*healthcheck.Reporter, error) {
	return healthcheck.NewReporter(log, cfg.Status.LogSchedule, checkers...)
}

func provideStatusHandler(log *slog.Logger, checkers []healthcheck.Checker) *handlers.StatusHandler {
	return handlers.NewStatusHandler(log, checkers...)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startBanner(log *slog.Logger, cfg config.Config, adapter *slack.Adapter, dir *channel.Directory) {
	fmt.Printf("Starting Jester %s\n", version.GetInfo())
	id := adapter.Identity()
	log.Info("jester ready",
		slog.String("bot_name", cfg.Slack.BotName),
		slog.String("user_id", id.UserID),
		slog.String("team_id", id.TeamID),
		slog.String("provider", cfg.Model.Provider),
		slog.String("model", cfg.Model.Name),
		slog.Int("users", len(dir.Roster())),
		slog.Int("free_channels", len(cfg.Directory.FreeChannels)),
		slog.Bool("previews", cfg.Preview.Enabled),
	)
}

// startPreload bootstraps the configured channels in the background so the first
// reply in them does not wait for a backfill.
func startPreload(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, dir *channel.Directory, store *history.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			for _, name := range cfg.History.Preload {
				channelID := dir.ChannelID(name)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Ensure(ctx, channelID); err != nil && ctx.Err() == nil {
						log.Warn("preload failed", slog.String("channel", name), slog.Any("error", err))
					}
				}()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

func startAdapter(lc fx.Lifecycle, log *slog.Logger, adapter *slack.Adapter, router *inbound.Router, shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := adapter.Start(ctx, router.HandleEvent); err != nil {
					log.Error("slack adapter stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			finished := make(chan struct{})
			go func() {
				<-done
				router.Wait()
				close(finished)
			}()
			select {
			case <-finished:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func startReporter(lc fx.Lifecycle, reporter *healthcheck.Reporter) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { reporter.Start(); return nil },
		OnStop:  func(ctx context.Context) error { return reporter.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
