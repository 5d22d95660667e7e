package cli

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlite"
	"quiz-attempt-service/internal/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// quizStore is what every durable backend offers for quiz definitions.
type quizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	AddParticipant(ctx context.Context, quizID, userID string) error
	PutQuiz(ctx context.Context, quiz domain.Quiz) error
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
}

// backend bundles the repositories chosen for the configured driver plus their cleanup.
type backend struct {
	quizStore quizStore
	quizzes   app.QuizRepository
	progress  app.ProgressRepository
	results   app.ResultRepository
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend wires the storage driver, then layers Redis on top when configured:
// Redis always fronts quiz definitions and holds in-flight progress; it owns results only
// for the memory driver, since SQL stores keep results next to the quiz they cascade from.
func openBackend(ctx context.Context, cfg config.Config, log *logger.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.quizStore, b.progress, b.results = store, store, store
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		bunDB := postgres.NewBunDB(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = bunDB.Close() })

		store := postgres.NewStore(pool)
		b.quizStore, b.progress, b.results = store, store, postgres.NewResultStore(bunDB)
	default:
		b.quizStore = memory.NewStaticQuizStore()
		b.progress = memory.NewProgressStore()
		b.results = memory.NewResultStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		b.quizzes = memory.NewQuizRepository(b.quizStore, quizTTL)
		return b, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.closers = append(b.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	b.quizzes = redisstore.NewQuizRepository(client, b.quizStore, quizTTL, log)
	b.progress = redisstore.NewProgressStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	if cfg.Storage.Driver == config.DriverMemory {
		b.results = redisstore.NewResultStore(client)
	}
	log.Info("redis enabled", "addr", cfg.Redis.Addr, "results_in_redis", cfg.Storage.Driver == config.DriverMemory)
	return b, nil
}

// seedQuizzes loads the configured seed file, or the built-in sample for the memory driver.
func seedQuizzes(ctx context.Context, cfg config.Config, store quizStore, log *logger.Logger) error {
	var quizzes []domain.Quiz
	switch {
	case cfg.Quiz.SeedFile != "":
		loaded, err := config.LoadQuizzes(cfg.Quiz.SeedFile)
		if err != nil {
			return err
		}
		quizzes = loaded
	case cfg.Storage.Driver == config.DriverMemory:
		quizzes = sampleQuizzes()
	}
	for _, quiz := range quizzes {
		if err := store.PutQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("seed quiz %s: %w", quiz.ID, err)
		}
	}
	if len(quizzes) > 0 {
		log.Info("quizzes seeded", "count", len(quizzes))
	}
	return nil
}

// sampleQuizzes keeps the memory driver usable without a seed file.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:               "quiz-1",
			Title:            "Warm-up",
			Description:      "A two-question sample quiz",
			CreatedBy:        "admin",
			TimeLimitSeconds: 60,
			Questions: []domain.Question{
				{ID: "1", Text: "What is the capital of France?", Options: []string{"Paris", "Lyon", "Nice"}, CorrectAnswer: "Paris"},
				{ID: "2", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
			},
		},
	}
}
