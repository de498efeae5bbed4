// Package scoring holds the pure point-calculation functions shared by the
// game flow and the end-of-game summaries. Nothing here touches storage or
// the clock.
package scoring

import (
	"math"

	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
)

// StreakCap is the number of consecutive correct answers after which the
// streak bonus stops growing.
const StreakCap = 5

// Breakdown itemizes the points awarded for a single answer.
type Breakdown struct {
	BasePoints  int `json:"basePoints"`
	TimeBonus   int `json:"timeBonus"`
	StreakBonus int `json:"streakBonus"`
	Total       int `json:"total"`
}

// CalculatePoints scores one answer. An instant correct answer earns the full
// base points; an answer at the wire earns half. TimeBonus is the signed
// adjustment relative to basePoints, so Total = basePoints*speedMultiplier +
// streakBonus. Incorrect answers earn nothing regardless of streak.
func CalculatePoints(responseTimeMs, maxTimeMs int64, basePoints int, isCorrect bool, streak int) Breakdown {
	if !isCorrect || maxTimeMs <= 0 {
		return Breakdown{}
	}

	timeFactor := float64(responseTimeMs) / float64(maxTimeMs)
	if timeFactor < 0 {
		timeFactor = 0
	}
	if timeFactor > 1 {
		timeFactor = 1
	}

	speedMultiplier := 1 - 0.5*timeFactor
	timeBonus := int(math.Round(float64(basePoints)*speedMultiplier)) - basePoints

	streakMultiplier := math.Min(0.5, float64(streak)*0.1)
	streakBonus := int(math.Round(float64(basePoints) * streakMultiplier))

	return Breakdown{
		BasePoints:  basePoints,
		TimeBonus:   timeBonus,
		StreakBonus: streakBonus,
		Total:       basePoints + timeBonus + streakBonus,
	}
}

// CalculateStreak counts the consecutive-correct run ending at the most
// recent answer (newest last), capped at cap.
func CalculateStreak(answers []domain.PlayerAnswer, cap int) int {
	streak := 0
	for i := len(answers) - 1; i >= 0; i-- {
		if !answers[i].IsCorrect {
			break
		}
		streak++
		if streak >= cap {
			return cap
		}
	}
	return streak
}

// Accuracy returns the percentage of correct answers, 0 for an empty log.
func Accuracy(answers []domain.PlayerAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(answers)) * 100
}

// AverageResponseTime returns the mean response time in milliseconds.
func AverageResponseTime(answers []domain.PlayerAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	var sum int64
	for _, a := range answers {
		sum += a.ResponseTimeMs
	}
	return float64(sum) / float64(len(answers))
}

// MaxStreak returns the longest consecutive-correct run anywhere in the log.
func MaxStreak(answers []domain.PlayerAnswer) int {
	best, run := 0, 0
	for _, a := range answers {
		if a.IsCorrect {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}
