package cli

import (
	"context"
	"fmt"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/logger"

	"github.com/spf13/cobra"
)

// NewSeedCmd loads quiz definitions from a YAML file into the configured durable store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quiz definitions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "quiz YAML file (defaults to quiz.seedFile)")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if file != "" {
		cfg.Quiz.SeedFile = file
	}
	if cfg.Quiz.SeedFile == "" {
		return fmt.Errorf("no quiz file given: use --file or quiz.seedFile")
	}
	if cfg.Storage.Driver == config.DriverMemory {
		return fmt.Errorf("seed needs a durable storage driver (sqlite or postgres)")
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Seeding writes definitions only; the redis cache is left to expire.
	cfg.Redis.Addr = ""
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()
	return seedQuizzes(ctx, cfg, b.quizStore, log)
}
