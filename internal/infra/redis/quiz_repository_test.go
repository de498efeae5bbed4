package redis

import (
	"context"
	"testing"
	"time"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
	"github.com/vincentsi/FastQuizParty-sub000/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, client := newTestRedis(t)

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.ID != "quiz-1" || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected cached quiz key")
	}
	// Fill lock is released once the cache is populated.
	if mr.Exists("lock:quiz:quiz-1") {
		t.Fatalf("expected fill lock to be released")
	}

	// Second call hits the cache, loader not incremented.
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuizRepositoryDegradesWhenLockHeld(t *testing.T) {
	mr, client := newTestRedis(t)

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(client, loader, time.Minute)

	// Another instance holds the fill lock: calls degrade to uncached loader
	// reads and do not populate the cache.
	if err := mr.Set("lock:quiz:quiz-1", "someone-else"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("degraded get: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader call, got %d", loader.calls)
	}
	if mr.Exists("quiz:quiz-1") {
		t.Fatalf("degraded read must not fill the cache")
	}
	// The foreign lock survives.
	if got, _ := mr.Get("lock:quiz:quiz-1"); got != "someone-else" {
		t.Fatalf("expected foreign lock intact, got %q", got)
	}
}

func TestQuizRepositoryPropagatesNotFound(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewQuizRepository(client, memory.NewStaticQuizLoader(nil), time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:                 "q1",
				Text:               "What is 2 + 2?",
				Options:            []string{"3", "4"},
				CorrectAnswerIndex: 1,
				TimeLimitSeconds:   15,
				Points:             1000,
			},
		},
	}
}
