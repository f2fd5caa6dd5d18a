package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"bento/internal/bot"
	"bento/internal/commands"
	"bento/internal/config"
	"bento/internal/dispatch"
	"bento/internal/jobs"
	"bento/internal/permission"
	"bento/internal/shard"
	"bento/internal/store"
	"bento/internal/store/sqlite"
	"bento/internal/telemetry"
)

const (
	serviceName     = "bento"
	prefixCacheSize = 10000
	prefixCacheTTL  = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var register, clearCommands bool
	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Run the Bento Discord bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			slog.SetDefault(newLogger(cfg))

			if register || clearCommands {
				syncCommands(cfg, clearCommands)
				return nil
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "publish slash commands and exit")
	cmd.Flags().BoolVar(&clearCommands, "clear", false, "remove published slash commands and exit")
	cmd.MarkFlagsMutuallyExclusive("register", "clear")
	return cmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// syncCommands publishes or clears slash command metadata. Failures are
// logged; the process still exits cleanly.
func syncCommands(cfg *config.Config, clearCommands bool) {
	rest, err := bot.NewSession(cfg.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "error", err)
		return
	}

	var published []*discordgo.ApplicationCommand
	if !clearCommands {
		reg := dispatch.NewRegistry()
		if _, err := commands.Register(reg, commands.Deps{Prefix: cfg.Prefix}); err != nil {
			slog.Error("failed to register commands", "error", err)
			return
		}
		published = reg.ApplicationCommands()
	}
	if err := bot.SyncCommands(rest, cfg.AppID, cfg.DevGuildID, published); err != nil {
		slog.Error("failed to sync commands", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		return err
	}
	defer st.Close()

	rest, err := bot.NewSession(cfg.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "error", err)
		return err
	}

	var coordinator *shard.Coordinator
	if cfg.Clustered() {
		coordinator = shard.NewCoordinator(cfg.CoordinatorURL, cfg.CoordinatorToken, &http.Client{Timeout: 10 * time.Second})
	}

	var b *bot.Bot
	var manager *shard.Manager
	manager = shard.NewManager(func(id, total int) (shard.Conn, error) {
		s, err := bot.NewShardSession(cfg.Token, id, total)
		if err != nil {
			return nil, err
		}
		b.Attach(s)
		return s, nil
	}, shard.ManagerOptions{
		SpawnDelay:   cfg.ShardSpawnDelay,
		SpawnTimeout: cfg.ShardSpawnTimeout,
		OnAllReady: func(ctx context.Context) error {
			plan := manager.Plan()
			slog.Info("all shards ready", "shards", len(plan.Shards))
			if coordinator == nil {
				return nil
			}
			return coordinator.Ready(ctx, plan.ClusterID)
		},
	})

	prefixes := store.NewPrefixCache(st, prefixCacheSize, prefixCacheTTL)
	dir := bot.NewDirectory()
	reg := dispatch.NewRegistry()
	set, err := commands.Register(reg, commands.Deps{
		Store:      st,
		Session:    rest,
		Directory:  dir,
		Shards:     manager,
		Prefixes:   prefixes,
		Prefix:     cfg.Prefix,
		XPCooldown: cfg.XPCooldown,
	})
	if err != nil {
		slog.Error("failed to register commands", "error", err)
		return err
	}

	d := dispatch.New(dispatch.Options{
		Registry:  reg,
		Checker:   permission.NewChecker(cfg.Developers),
		Session:   rest,
		Directory: dir,
		Limits: dispatch.Limits{
			Commands:    dispatch.Limit(cfg.CommandLimit),
			Buttons:     dispatch.Limit(cfg.ButtonLimit),
			Reactions:   dispatch.Limit(cfg.ReactionLimit),
			SelectMenus: dispatch.Limit(cfg.SelectMenuLimit),
		},
		Prefix:       cfg.Prefix,
		SupportURL:   cfg.SupportURL,
		Actors:       st,
		Prefixes:     prefixes,
		Fallback:     set.TagFallback,
		MessageHooks: []dispatch.MessageHook{set.AwardXP},
		Lifecycle:    set.Lifecycle(),
	})
	b = bot.New(d, manager, dir)
	defer b.Shutdown()

	shutdownTracing := func(context.Context) error { return nil }
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	plan, ok, err := launch(ctx, cfg, rest, coordinator, manager, func(plan shard.Plan) error {
		shutdown, err := telemetry.Setup(ctx, telemetry.Options{
			ServiceName: serviceName,
			Endpoint:    cfg.OTelEndpoint,
			ClusterID:   plan.ClusterID,
			Shards:      plan.Shards,
			TotalShards: plan.Total,
		})
		if err != nil {
			return fmt.Errorf("set up tracing: %w", err)
		}
		shutdownTracing = shutdown
		return nil
	})
	if !ok {
		return err
	}
	defer manager.Close()

	// Scheduled jobs run once per deployment, in the process owning shard 0.
	if slices.Contains(plan.Shards, 0) {
		scheduler, err := startJobs(st, rest)
		if err != nil {
			slog.Error("failed to schedule jobs", "error", err)
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := scheduler.Stop(ctx); err != nil {
				slog.Warn("jobs did not stop in time", "error", err)
			}
		}()
	}

	slog.Info("bot is running")
	<-ctx.Done()

	slog.Info("shutting down")
	return nil
}

// launch plans this process's shards, hands the plan to prepare and spawns
// the shards through manager. ok reports whether shards were started. When
// no plan can be made nothing is spawned and err is nil, so the process
// exits cleanly.
func launch(ctx context.Context, cfg *config.Config, gw shard.Gateway, coordinator *shard.Coordinator, manager *shard.Manager, prepare func(shard.Plan) error) (plan shard.Plan, ok bool, err error) {
	plan, err = planShards(ctx, cfg, gw, coordinator)
	if err != nil {
		slog.Error("failed to plan shards", "error", err)
		return shard.Plan{}, false, nil
	}
	slog.Info("planned shards", "shards", plan.Shards, "total_shards", plan.Total, "cluster_id", plan.ClusterID)

	if prepare != nil {
		if err := prepare(plan); err != nil {
			slog.Error("failed to prepare shards", "error", err)
			return plan, false, err
		}
	}
	if coordinator != nil {
		if err := coordinator.Login(ctx, plan.ClusterID); err != nil {
			slog.Error("failed to report cluster login", "cluster_id", plan.ClusterID, "error", err)
			return plan, false, err
		}
	}
	if err := manager.Start(ctx, plan); err != nil {
		slog.Error("failed to start shards", "error", err)
		return plan, false, err
	}
	return plan, true, nil
}

func planShards(ctx context.Context, cfg *config.Config, gw shard.Gateway, coordinator *shard.Coordinator) (shard.Plan, error) {
	if coordinator == nil {
		return shard.Standalone(gw, cfg.GuildsPerShard)
	}
	plan, err := shard.Clustered(ctx, coordinator, gw)
	if err != nil {
		return shard.Plan{}, fmt.Errorf("cluster %s: %w", cfg.CoordinatorURL, err)
	}
	return plan, nil
}

func startJobs(st jobs.Store, s jobs.Session) (*jobs.Scheduler, error) {
	scheduler := jobs.NewScheduler(slog.Default())
	for _, j := range jobs.Builtin(st, s, time.Now) {
		if err := scheduler.Add(j); err != nil {
			return nil, err
		}
	}
	scheduler.Start()
	return scheduler, nil
}
