package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"scoreboard-service/internal/app"
	"scoreboard-service/internal/domain"
	pgstore "scoreboard-service/internal/infra/postgres"
	pgmigrations "scoreboard-service/internal/infra/postgres/migrations"
	infraredis "scoreboard-service/internal/infra/redis"
)

const keyCSV = "category_id,content,overall_band_score\n1,first,A\n2,second,B\n3,third,C"

func TestSubmitSolutionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	tasks := []domain.Task{{ID: "T1", Name: "Task A"}, {ID: "T2", Name: "Task B"}}
	teams := []*domain.Team{
		{ID: "team-a", Name: "NLP Wizards"},
		{ID: "team-b", Name: "Syntax Strikers"},
	}
	if err := store.Reset(ctx, tasks, teams, domain.StatusLive); err != nil {
		t.Fatalf("seed contest: %v", err)
	}

	keys := infraredis.NewKeyCache(redisClient, store, store, 5*time.Minute)
	service := app.NewContestService(keys, store)
	service.Bootstrap(tasks, teams, domain.StatusLive)

	if err := service.UploadKey(ctx, "T1", keyCSV); err != nil {
		t.Fatalf("upload key: %v", err)
	}

	sub, board, err := service.SubmitSolution(ctx, "team-a", "T1", "1,first,A\n2,second,B\n3,third,wrong")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score == nil || *sub.Score < 66 || *sub.Score > 67 {
		t.Fatalf("expected two of three correct, got %+v", sub.Score)
	}
	if board.Teams[0].ID != "team-a" || board.Teams[0].Rank != 1 {
		t.Fatalf("expected team-a leading, got %+v", board.Teams[0])
	}

	// A second submission must only raise the best score.
	sub, _, err = service.SubmitSolution(ctx, "team-a", "T1", "1,first,A\n2,second,B\n3,third,C")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Attempts != 2 || sub.Score == nil || *sub.Score != 100 {
		t.Fatalf("expected best 100 after 2 attempts, got %+v", sub)
	}

	// A fresh service loading from postgres sees the same contest: teams,
	// attempt history, rebuilt bests, and the key cached through redis.
	tasks, teams, status, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	restarted := app.NewContestService(keys, store)
	restarted.Bootstrap(tasks, teams, status)

	team, err := restarted.Team("team-a")
	if err != nil {
		t.Fatalf("team after restart: %v", err)
	}
	cell := team.Submissions["T1"]
	if cell == nil || cell.Attempts != 2 || cell.Score == nil || *cell.Score != 100 {
		t.Fatalf("expected history to survive restart, got %+v", cell)
	}
	if !cell.IsBestScore {
		t.Fatalf("expected rebuilt best flag after restart")
	}

	if _, _, err := restarted.SubmitSolution(ctx, "team-b", "T1", "1,first,A\n2,second,B\n3,third,C"); err != nil {
		t.Fatalf("submit after restart: %v", err)
	}
	snap := restarted.Snapshot()
	if len(snap.Teams) != 2 || snap.Teams[0].Rank != 1 {
		t.Fatalf("expected ranked scoreboard after restart, got %+v", snap.Teams)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "scoreboard", "POSTGRES_PASSWORD": "scorepass", "POSTGRES_DB": "scoreboard"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://scoreboard:scorepass@%s:%s/scoreboard?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
