package cli

import (
	"context"
	"fmt"
	"io"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/logger"

	"github.com/spf13/cobra"
)

// NewReconcileCmd adds users holding a result to their quiz's participant set.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair participant sets that lag behind stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := seedQuizzes(cmd.Context(), cfg, b.quizStore, log); err != nil {
				return err
			}
			service := app.NewAttemptService(b.quizzes, b.progress, b.results, log)
			return runReconcile(cmd.Context(), service, quizID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id to reconcile (all quizzes when empty)")
	return cmd
}

func runReconcile(ctx context.Context, service *app.AttemptService, quizID string, out io.Writer) error {
	ids := []string{quizID}
	if quizID == "" {
		quizzes, err := service.ListQuizzes(ctx)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, quiz := range quizzes {
			ids = append(ids, quiz.ID)
		}
	}
	for _, id := range ids {
		repaired, err := service.ReconcileParticipants(ctx, id)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", id, err)
		}
		fmt.Fprintf(out, "%s: %d participant(s) repaired\n", id, repaired)
	}
	return nil
}
