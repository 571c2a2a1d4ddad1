package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"scoreboard-service/internal/app"
	"scoreboard-service/internal/config"
	"scoreboard-service/internal/domain"
	"scoreboard-service/internal/infra/memory"
	pgstore "scoreboard-service/internal/infra/postgres"
	redisinfra "scoreboard-service/internal/infra/redis"
	"scoreboard-service/internal/metrics"
	transport "scoreboard-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scoreboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	keyTTL := config.TTLDuration(cfg.Keys.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var store *pgstore.Store
	var appStore app.Store
	if pool != nil {
		store = pgstore.NewStore(pool)
		appStore = store
	}

	var keys app.KeyRepository
	switch {
	case redisClient != nil && store != nil:
		keys = redisinfra.NewKeyCache(redisClient, store, store, keyTTL)
	case redisClient != nil:
		keys = redisinfra.NewKeyCache(redisClient, nil, nil, keyTTL)
	case store != nil:
		keys = memory.NewKeyStore(store, store, keyTTL)
	default:
		keys = memory.NewKeyStore(nil, nil, 0)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	service := app.NewContestService(keys, appStore, app.WithMetrics(m))

	if store != nil {
		tasks, teams, status, err := store.LoadState(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 && len(teams) == 0 {
			seedDemo(ctx, service, appStore)
		} else {
			service.Bootstrap(tasks, teams, status)
		}
	} else {
		seedDemo(ctx, service, nil)
	}

	wsHandler := transport.NewWSHandler(service, m)
	adminHandler := transport.NewAdminHandler(service, cfg.Admin.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	adminHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting scoreboard service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemo installs a small demo contest; swap in real data by pointing the
// service at Postgres.
func seedDemo(ctx context.Context, service *app.ContestService, store app.Store) {
	tasks := demoTasks()
	teams := demoTeams()
	service.Bootstrap(tasks, teams, domain.StatusLive)
	if store != nil {
		if err := store.Reset(ctx, tasks, teams, domain.StatusLive); err != nil {
			log.Printf("persist demo contest: %v", err)
		}
	}
}

func demoTasks() []domain.Task {
	names := []string{"Task A", "Task B", "Task C", "Task D", "Task E", "Task F", "Task G", "Task H"}
	tasks := make([]domain.Task, 0, len(names))
	for i, name := range names {
		tasks = append(tasks, domain.Task{
			ID:            "T" + strconv.Itoa(i+1),
			Name:          name,
			KeyVisibility: domain.KeyPrivate,
		})
	}
	return tasks
}

func demoTeams() []*domain.Team {
	names := []string{"NLP Wizards", "Syntax Strikers", "Lexical Legends"}
	teams := make([]*domain.Team, 0, len(names))
	for i, name := range names {
		teams = append(teams, &domain.Team{
			ID:          "team-" + strconv.Itoa(i+1),
			Name:        name,
			Submissions: make(map[string]*domain.Submission),
		})
	}
	return teams
}
