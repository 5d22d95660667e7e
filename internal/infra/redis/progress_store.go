package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"

	"github.com/redis/go-redis/v9"
)

// ProgressStore keeps in-flight attempts as JSON strings keyed by pair.
// Keys are attempt:progress:{len(quizID)}:{quizID}:{userID}; the length prefix keeps ids containing ':' apart.
// A TTL bounds how long an abandoned attempt lingers; zero keeps progress until it is cleared.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) SaveProgress(ctx context.Context, progress domain.AttemptProgress) error {
	raw, err := codec.EncodeProgress(progress)
	if err != nil {
		return domain.Storage("encode progress", err)
	}
	if err := s.client.Set(ctx, progressKey(progress.QuizID, progress.UserID), raw, s.ttl).Err(); err != nil {
		return domain.Storage("save progress", err)
	}
	return nil
}

func (s *ProgressStore) GetProgress(ctx context.Context, userID, quizID string) (domain.AttemptProgress, error) {
	raw, err := s.client.Get(ctx, progressKey(quizID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}
	progress, err := codec.DecodeProgress(raw)
	if err != nil {
		return domain.AttemptProgress{}, domain.Storage("get progress", err)
	}
	if progress.UserID != userID || progress.QuizID != quizID {
		return domain.AttemptProgress{}, domain.Storage("get progress",
			fmt.Errorf("key holds attempt of user %q on quiz %q", progress.UserID, progress.QuizID))
	}
	return progress, nil
}

func (s *ProgressStore) DeleteProgress(ctx context.Context, userID, quizID string) error {
	if err := s.client.Del(ctx, progressKey(quizID, userID)).Err(); err != nil {
		return domain.Storage("delete progress", err)
	}
	return nil
}

// PurgeQuiz drops in-flight attempts of a deleted quiz.
func (s *ProgressStore) PurgeQuiz(ctx context.Context, quizID string) error {
	var keys []string
	pattern := "attempt:progress:" + strconv.Itoa(len(quizID)) + ":" + escapeGlob(quizID) + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return domain.Storage("purge progress", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return domain.Storage("purge progress", err)
	}
	return nil
}

func progressKey(quizID, userID string) string {
	return progressQuizPrefix(quizID) + userID
}

func progressQuizPrefix(quizID string) string {
	return "attempt:progress:" + strconv.Itoa(len(quizID)) + ":" + quizID + ":"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
