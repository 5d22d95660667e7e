package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizStore is the durable source of quiz definitions and participant sets (static map, SQL, ...).
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	AddParticipant(ctx context.Context, quizID, userID string) error
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID string) error
}

// QuizRepository caches quizzes with TTL to avoid repeated store hits. A TTL <= 0 disables caching.
// Participant writes go straight to the store and drop the cached entry. Each drop bumps the quiz's
// generation so a load that was already in flight does not refill the cache with its older snapshot.
type QuizRepository struct {
	store QuizStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
	gen   map[string]uint64
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(store QuizStore, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuiz),
		gen:   make(map[string]uint64),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}

		r.mu.RLock()
		gen := r.gen[quizID]
		r.mu.RUnlock()

		now := r.clock()
		quiz, err := r.store.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		if r.ttl > 0 && r.gen[quizID] == gen {
			r.cache[quizID] = cachedQuiz{
				quiz:      quiz,
				expiresAt: now.Add(r.ttlWithJitterLocked()),
			}
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz := result.(domain.Quiz)
	quiz.Participants = quiz.Participants.Clone()
	return quiz, nil
}

// AddParticipant writes through to the store and invalidates the cached quiz.
func (r *QuizRepository) AddParticipant(ctx context.Context, quizID, userID string) error {
	err := r.store.AddParticipant(ctx, quizID, userID)
	r.Invalidate(quizID)
	return err
}

// ListQuizzes reads straight from the store; listings are not cached.
func (r *QuizRepository) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return r.store.ListQuizzes(ctx)
}

// DeleteQuiz removes the quiz from the store and the cache.
func (r *QuizRepository) DeleteQuiz(ctx context.Context, quizID string) error {
	err := r.store.DeleteQuiz(ctx, quizID)
	r.Invalidate(quizID)
	return err
}

// Invalidate drops a cached quiz and makes later callers start a fresh load.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.gen[quizID]++
	r.mu.Unlock()
	r.sf.Forget(quizID)
}

func (r *QuizRepository) cached(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	quiz := entry.quiz
	quiz.Participants = quiz.Participants.Clone()
	return quiz, true
}

func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizStore keeps quizzes and their participant sets in process (useful for tests/demos).
type StaticQuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewStaticQuizStore(quizzes ...domain.Quiz) *StaticQuizStore {
	s := &StaticQuizStore{quizzes: make(map[string]domain.Quiz, len(quizzes))}
	for _, q := range quizzes {
		s.put(q)
	}
	return s
}

// PutQuiz inserts or replaces a quiz definition, keeping existing participants.
func (s *StaticQuizStore) PutQuiz(_ context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	s.put(quiz)
	return nil
}

func (s *StaticQuizStore) put(quiz domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participants := quiz.Participants.Clone()
	if existing, ok := s.quizzes[quiz.ID]; ok {
		for id := range existing.Participants {
			participants[id] = struct{}{}
		}
	}
	quiz.Participants = participants
	if quiz.LastUpdated.IsZero() {
		quiz.LastUpdated = time.Now().UTC()
	}
	s.quizzes[quiz.ID] = quiz
}

func (s *StaticQuizStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Participants = quiz.Participants.Clone()
	return quiz, nil
}

func (s *StaticQuizStore) AddParticipant(_ context.Context, quizID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.Participants[userID] = struct{}{}
	return nil
}

// ListQuizzes returns every quiz ordered by id.
func (s *StaticQuizStore) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		quiz.Participants = quiz.Participants.Clone()
		out = append(out, quiz)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StaticQuizStore) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}
