package redis

import (
	"context"
	"errors"
	"sort"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"

	"github.com/redis/go-redis/v9"
)

// ResultStore keeps one hash per quiz: HSET quiz:{quizID}:results {userID} {result JSON}.
// HSETNX is the uniqueness constraint; results never expire.
type ResultStore struct {
	client *redis.Client
}

func NewResultStore(client *redis.Client) *ResultStore {
	return &ResultStore{client: client}
}

func (s *ResultStore) CreateResult(ctx context.Context, result domain.AttemptResult) error {
	raw, err := codec.EncodeResult(result)
	if err != nil {
		return domain.Storage("encode result", err)
	}
	created, err := s.client.HSetNX(ctx, resultsKey(result.QuizID), result.UserID, raw).Result()
	if err != nil {
		return domain.Storage("create result", err)
	}
	if !created {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *ResultStore) GetResult(ctx context.Context, userID, quizID string) (domain.AttemptResult, error) {
	raw, err := s.client.HGet(ctx, resultsKey(quizID), userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AttemptResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.AttemptResult{}, domain.Storage("get result", err)
	}
	result, err := codec.DecodeResult(raw)
	if err != nil {
		return domain.AttemptResult{}, domain.Storage("get result", err)
	}
	return result, nil
}

func (s *ResultStore) ListResults(ctx context.Context, quizID string) ([]domain.AttemptResult, error) {
	values, err := s.client.HVals(ctx, resultsKey(quizID)).Result()
	if err != nil {
		return nil, domain.Storage("list results", err)
	}
	out := make([]domain.AttemptResult, 0, len(values))
	for _, raw := range values {
		result, err := codec.DecodeResult([]byte(raw))
		if err != nil {
			return nil, domain.Storage("list results", err)
		}
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func resultsKey(quizID string) string {
	return "quiz:" + quizID + ":results"
}

// PurgeQuiz drops every result of a deleted quiz.
func (s *ResultStore) PurgeQuiz(ctx context.Context, quizID string) error {
	if err := s.client.Del(ctx, resultsKey(quizID)).Err(); err != nil {
		return domain.Storage("purge results", err)
	}
	return nil
}
