// Package fsrs implements the scheduling kernel contract consumed by the
// session engine: schedule(state, rating) -> state' and
// create_initial_state(now) -> state. The engine treats this package as a
// black box (spec §6); the weights below are the published FSRS-4.5
// defaults, not original_source-derived, since no example repository in
// the corpus ships a spaced-repetition math kernel to ground this on.
package fsrs

import (
	"math"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// Rating mirrors models.FSRSRating as an integer so interval arithmetic
// stays close to the published algorithm's 1-4 encoding.
type Rating int

// Rating constants matching FSRS-4.5's numeric encoding.
const (
	RatingAgain Rating = 1 // models.RatingForgot
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// FromModelRating converts the engine's string rating into the kernel's
// numeric encoding.
func FromModelRating(r models.FSRSRating) Rating {
	switch r {
	case models.RatingForgot:
		return RatingAgain
	case models.RatingHard:
		return RatingHard
	case models.RatingEasy:
		return RatingEasy
	default:
		return RatingGood
	}
}

// weights holds the 17 published FSRS-4.5 default parameters (w0..w16).
var weights = [17]float64{
	0.4072, 1.1829, 3.1262, 15.4722, 7.2102, 0.5316, 1.0651, 0.0234,
	1.616, 0.1544, 1.0824, 1.9813, 0.0953, 0.2975, 2.2042, 0.2407, 2.9466,
}

const (
	decay            = -0.5
	factor           = 0.9 // base of factorConst below: factor^(1/decay) - 1
	requestRetention = 0.9
)

// factorConst is 19/81 = factor^(1/decay) - 1 = 0.9^(-2) - 1 for decay = -0.5.
const factorConst = 19.0 / 81.0

// CreateInitialState returns a fresh FSRSState for a new recall point:
// difficulty and stability are seeded from a "good" rating, and the point
// is due immediately at `now`.
func CreateInitialState(now time.Time) models.FSRSState {
	d := initialDifficulty(RatingGood)
	s := initialStability(RatingGood)
	return models.FSRSState{
		Difficulty: clampDifficulty(d),
		Stability:  s,
		Due:        now,
		LastReview: nil,
		Reps:       0,
		Lapses:     0,
		State:      models.FSRSStateNew,
	}
}

// Schedule maps (state, rating) to a new FSRSState, per §6's black-box
// contract. `now` is the review time.
func Schedule(state models.FSRSState, rating Rating, now time.Time) models.FSRSState {
	elapsedDays := 0.0
	if state.LastReview != nil {
		elapsedDays = now.Sub(*state.LastReview).Hours() / 24
		if elapsedDays < 0 {
			elapsedDays = 0
		}
	}

	var newDifficulty, newStability float64
	var newState models.FSRSCardState
	reps := state.Reps
	lapses := state.Lapses

	switch state.State {
	case models.FSRSStateNew, "":
		newDifficulty = clampDifficulty(initialDifficulty(rating))
		newStability = initialStability(rating)
		reps = 1
		if rating == RatingAgain {
			newState = models.FSRSStateLearning
		} else {
			newState = models.FSRSStateReview
		}
	default:
		retrievability := forgettingCurve(elapsedDays, state.Stability)
		newDifficulty = clampDifficulty(nextDifficulty(state.Difficulty, rating))
		reps = state.Reps + 1
		if rating == RatingAgain {
			lapses = state.Lapses + 1
			newStability = nextForgetStability(newDifficulty, state.Stability, retrievability)
			newState = models.FSRSStateRelearning
		} else {
			newStability = nextRecallStability(newDifficulty, state.Stability, retrievability, rating)
			newState = models.FSRSStateReview
		}
	}

	interval := nextInterval(newStability)
	reviewedAt := now

	return models.FSRSState{
		Difficulty: newDifficulty,
		Stability:  newStability,
		Due:        now.Add(time.Duration(interval * 24 * float64(time.Hour))),
		LastReview: &reviewedAt,
		Reps:       reps,
		Lapses:     lapses,
		State:      newState,
	}
}

func initialDifficulty(r Rating) float64 {
	return weights[4] - math.Exp(weights[5]*(float64(r)-1)) + 1
}

func initialStability(r Rating) float64 {
	s := weights[int(r)-1]
	if s < 0.1 {
		return 0.1
	}
	return s
}

func clampDifficulty(d float64) float64 {
	if d < 1 {
		return 1
	}
	if d > 10 {
		return 10
	}
	return d
}

func nextDifficulty(d float64, r Rating) float64 {
	deltaD := -weights[6] * (float64(r) - 3)
	meanReversion := weights[7]*initialDifficulty(RatingEasy) + (1-weights[7])*(d+deltaD*(10-d)/9)
	return meanReversion
}

// forgettingCurve computes retrievability given elapsed days and stability.
func forgettingCurve(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	return math.Pow(1+factorConst*elapsedDays/stability, decay)
}

func nextRecallStability(d, s, retrievability float64, r Rating) float64 {
	hardPenalty := 1.0
	if r == RatingHard {
		hardPenalty = weights[15]
	}
	easyBonus := 1.0
	if r == RatingEasy {
		easyBonus = weights[16]
	}
	return s * (1 + math.Exp(weights[8])*
		(11-d)*
		math.Pow(s, -weights[9])*
		(math.Exp((1-retrievability)*weights[10])-1)*
		hardPenalty*easyBonus)
}

func nextForgetStability(d, s, retrievability float64) float64 {
	return weights[11] * math.Pow(d, -weights[12]) * (math.Pow(s+1, weights[13]) - 1) * math.Exp((1-retrievability)*weights[14])
}

func nextInterval(stability float64) float64 {
	interval := (stability / factorConst) * (math.Pow(requestRetention, 1/decay) - 1)
	if interval < 1 {
		return 1
	}
	return math.Round(interval)
}
