package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// QuizLoader fetches quiz definitions from the backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const (
	quizKeyPrefix = "quiz:"
	lockKeyPrefix = "lock:quiz:"
	lockHold      = 5 * time.Second
)

// QuizRepository caches full quiz definitions in Redis (one JSON value per
// quiz) and falls back to the loader on cache miss. Misses are collapsed
// in-process with singleflight and across instances with a short-lived SETNX
// token; when the token cannot be acquired the caller degrades to an
// uncached loader read rather than blocking on the token holder.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if quiz, ok := r.fromCache(ctx, quizID); ok {
			return quiz, nil
		}

		token := uuid.NewString()
		acquired, err := r.client.SetNX(ctx, lockKeyPrefix+quizID, token, lockHold).Result()
		if err != nil || !acquired {
			// Another instance is filling the cache; serve an uncached read.
			return r.loader.LoadQuiz(ctx, quizID)
		}
		defer r.releaseLock(ctx, quizID, token)

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if data, err := json.Marshal(quiz); err == nil {
			_ = r.client.Set(ctx, quizKeyPrefix+quizID, data, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, quizID string) (domain.Quiz, bool) {
	data, err := r.client.Get(ctx, quizKeyPrefix+quizID).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

// releaseLock deletes the token only if this instance still owns it.
func (r *QuizRepository) releaseLock(ctx context.Context, quizID, token string) {
	key := lockKeyPrefix + quizID
	if current, err := r.client.Get(ctx, key).Result(); err == nil && current == token {
		_ = r.client.Del(ctx, key).Err()
	}
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
