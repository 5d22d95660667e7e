package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/codec"
	"quiz-attempt-service/internal/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizStore is the durable source of quiz definitions and participant sets (SQL, static map, ...).
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	AddParticipant(ctx context.Context, quizID, userID string) error
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
}

var errStaleLoad = errors.New("quiz changed while loading")

// QuizRepository caches whole quiz definitions in Redis and falls back to the store on a miss.
// Definitions are stored as JSON under quiz:{quizID}:definition with a jittered TTL; a TTL <= 0
// disables caching. Participant writes go to the store first and then drop the cached definition
// and bump quiz:{quizID}:version. A fill only lands if the version it read before loading is
// still current, so a load racing an invalidation from any process never caches its snapshot.
type QuizRepository struct {
	client *redis.Client
	store  QuizStore
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizRepository(client *redis.Client, store QuizStore, ttl time.Duration, log *logger.Logger) *QuizRepository {
	if log == nil {
		log = logger.NewNop()
	}
	return &QuizRepository{
		client: client,
		store:  store,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		version, versionErr := r.client.Get(ctx, versionKey(quizID)).Int64()
		if errors.Is(versionErr, redis.Nil) {
			versionErr = nil
		}

		quiz, err := r.store.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if r.ttl <= 0 {
			return quiz, nil
		}
		if versionErr != nil {
			r.log.Warn("read quiz version failed, skipping cache", "quiz_id", quizID, "error", versionErr)
			return quiz, nil
		}

		raw, err := codec.EncodeQuiz(quiz)
		if err != nil {
			r.log.Warn("encode quiz for cache failed", "quiz_id", quizID, "error", err)
			return quiz, nil
		}
		r.fill(ctx, quizID, raw, version)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz := result.(domain.Quiz)
	quiz.Participants = quiz.Participants.Clone()
	return quiz, nil
}

// AddParticipant writes through to the store and invalidates the cached definition.
func (r *QuizRepository) AddParticipant(ctx context.Context, quizID, userID string) error {
	if err := r.store.AddParticipant(ctx, quizID, userID); err != nil {
		return err
	}
	r.Invalidate(ctx, quizID)
	return nil
}

// ListQuizzes reads straight from the store; listings are not cached.
func (r *QuizRepository) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return r.store.ListQuizzes(ctx)
}

// DeleteQuiz removes the quiz from the store and drops the cached definition.
func (r *QuizRepository) DeleteQuiz(ctx context.Context, quizID string) error {
	err := r.store.DeleteQuiz(ctx, quizID)
	r.Invalidate(ctx, quizID)
	return err
}

// Invalidate drops a cached definition and bumps its version. Failures are logged; the entry then ages out via TTL.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(quizID))
		pipe.Del(ctx, definitionKey(quizID))
		return nil
	})
	if err != nil {
		r.log.Warn("invalidate cached quiz failed", "quiz_id", quizID, "error", err)
	}
	r.sf.Forget(quizID)
}

// fill writes the definition only while the version is unchanged since the load began.
func (r *QuizRepository) fill(ctx context.Context, quizID string, raw []byte, version int64) {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(quizID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, definitionKey(quizID), raw, r.ttlWithJitter())
			return nil
		})
		return err
	}, versionKey(quizID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		r.log.Debug("quiz changed during load, not caching", "quiz_id", quizID)
	default:
		r.log.Warn("cache quiz failed", "quiz_id", quizID, "error", err)
	}
}

// cached treats unreachable Redis and corrupt entries as misses; the store stays the source of truth.
func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, definitionKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("read cached quiz failed", "quiz_id", quizID, "error", err)
		}
		return domain.Quiz{}, false
	}
	quiz, err := codec.DecodeQuiz(raw)
	if err != nil || quiz.ID != quizID {
		r.log.Error("corrupt cached quiz dropped", "quiz_id", quizID, "error", err)
		r.Invalidate(ctx, quizID)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func definitionKey(quizID string) string {
	return "quiz:" + quizID + ":definition"
}

func versionKey(quizID string) string {
	return "quiz:" + quizID + ":version"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
