// Package review implements the background game-review pipeline: a
// bounded job queue, a worker pool with one dedicated engine
// subprocess per worker, per-ply centipawn-loss evaluation, and
// crash-safe incremental persistence.
package review

import "math"

// Classification is a move's quality bucket, assigned after every ply
// is evaluated.
type Classification string

const (
	ClassBrilliant  Classification = "brilliant"
	ClassBest       Classification = "best"
	ClassExcellent  Classification = "excellent"
	ClassGood       Classification = "good"
	ClassBook       Classification = "book"
	ClassInaccuracy Classification = "inaccuracy"
	ClassMistake    Classification = "mistake"
	ClassBlunder    Classification = "blunder"
	ClassForced     Classification = "forced"
)

// Centipawn-loss thresholds for classification.
const (
	bestThreshold       = 10
	excellentThreshold  = 25
	goodThreshold       = 50
	inaccuracyThreshold = 100
	mistakeThreshold    = 300
)

// Classify is a pure function of centipawn loss and whether the
// position had exactly one legal move. Brilliant and book are
// reserved classifications this worker never assigns: distinguishing
// a sacrifice-that-holds from a simple best move, or a played move
// from known opening theory, both need information this pipeline
// doesn't have (attack depth, an opening database) beyond cp_loss and
// is_forced.
func Classify(cpLoss int, isForced bool) Classification {
	if isForced {
		return ClassForced
	}
	switch {
	case cpLoss <= bestThreshold:
		return ClassBest
	case cpLoss <= excellentThreshold:
		return ClassExcellent
	case cpLoss <= goodThreshold:
		return ClassGood
	case cpLoss <= inaccuracyThreshold:
		return ClassInaccuracy
	case cpLoss <= mistakeThreshold:
		return ClassMistake
	default:
		return ClassBlunder
	}
}

// accuracyCap is the per-move centipawn loss ceiling used only when
// averaging for the accuracy formula; stored losses stay uncapped.
const accuracyCap = 1000

// Accuracy converts a side's average (capped) centipawn loss into a
// 0-100 accuracy score using the curve `103.1668 * exp(-0.006*x) - 3.1668`.
func Accuracy(losses []int) float64 {
	if len(losses) == 0 {
		return 100
	}
	var total float64
	for _, l := range losses {
		if l > accuracyCap {
			l = accuracyCap
		}
		if l < 0 {
			l = 0
		}
		total += float64(l)
	}
	avg := total / float64(len(losses))

	acc := 103.1668*math.Exp(-0.006*avg) - 3.1668
	if acc < 0 {
		return 0
	}
	if acc > 100 {
		return 100
	}
	return acc
}
