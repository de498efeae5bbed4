// Package anticheat validates answer timing against the question window and
// flags statistically suspicious play. Hard-invalid verdicts reject the
// submission; suspicion flags are advisory and only ever logged.
package anticheat

import (
	"math"
	"time"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

const (
	// NetworkToleranceMs extends the question window to absorb broadcast
	// delivery delay. Lateness inside this margin is a normal consequence of
	// the timeout race, not cheating.
	NetworkToleranceMs = 100
	// MinHumanReactionMs marks the floor below which a response is humanly
	// implausible. Such answers still count but are flagged.
	MinHumanReactionMs = 500
)

// Reasons for a hard-invalid verdict.
const (
	ReasonBeforeQuestion  = "answered_before_question"
	ReasonNetworkLateness = "network_lateness"
)

// Suspicion flags (advisory).
const (
	FlagTooFast             = "too_fast"
	FlagPerfectAccuracyFast = "perfect_accuracy_fast_time"
	FlagTooRegular          = "too_regular"
	FlagAllMinimalTime      = "all_minimal_time"
)

// Verdict is the outcome of a single-answer timing check.
type Verdict struct {
	Valid      bool
	Reason     string
	Suspicious bool
	Flag       string
	ElapsedMs  int64
}

// ValidateAnswer checks a submission timestamp against the question window.
func ValidateAnswer(submittedAt, questionStartedAt time.Time, timeLimitSeconds int) Verdict {
	elapsed := submittedAt.Sub(questionStartedAt).Milliseconds()

	if elapsed < 0 {
		return Verdict{Valid: false, Reason: ReasonBeforeQuestion, ElapsedMs: elapsed}
	}
	if elapsed > int64(timeLimitSeconds)*1000+NetworkToleranceMs {
		return Verdict{Valid: false, Reason: ReasonNetworkLateness, ElapsedMs: elapsed}
	}
	if elapsed < MinHumanReactionMs {
		return Verdict{Valid: true, Suspicious: true, Flag: FlagTooFast, ElapsedMs: elapsed}
	}
	return Verdict{Valid: true, ElapsedMs: elapsed}
}

// DetectSuspiciousPattern inspects a player's answer history and returns the
// set of pattern flags it matches. It never blocks play and never rescinds
// points; callers log the flags for manual review.
func DetectSuspiciousPattern(history []domain.PlayerAnswer) []string {
	if len(history) < 3 {
		return nil
	}

	var flags []string
	correct := 0
	var sum int64
	for _, a := range history {
		if a.IsCorrect {
			correct++
		}
		sum += a.ResponseTimeMs
	}
	accuracy := float64(correct) / float64(len(history)) * 100
	mean := float64(sum) / float64(len(history))

	if accuracy >= 95 && mean < 750 {
		flags = append(flags, FlagPerfectAccuracyFast)
	}

	if len(history) >= 5 {
		if stddev(history, mean) < 200 {
			flags = append(flags, FlagTooRegular)
		}
		if allBelow(history, 600) {
			flags = append(flags, FlagAllMinimalTime)
		}
	}
	return flags
}

func stddev(history []domain.PlayerAnswer, mean float64) float64 {
	var variance float64
	for _, a := range history {
		d := float64(a.ResponseTimeMs) - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(history)))
}

func allBelow(history []domain.PlayerAnswer, ms int64) bool {
	for _, a := range history {
		if a.ResponseTimeMs >= ms {
			return false
		}
	}
	return true
}
