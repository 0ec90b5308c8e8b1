package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsDeterministic(t *testing.T) {
	cases := []struct {
		cpLoss   int
		isForced bool
		want     Classification
	}{
		{0, false, ClassBest},
		{10, false, ClassBest},
		{11, false, ClassExcellent},
		{25, false, ClassExcellent},
		{50, false, ClassGood},
		{100, false, ClassInaccuracy},
		{300, false, ClassMistake},
		{301, false, ClassBlunder},
		{5000, false, ClassBlunder},
		{5000, true, ClassForced},
		{0, true, ClassForced},
	}
	for _, c := range cases {
		got := Classify(c.cpLoss, c.isForced)
		assert.Equal(t, c.want, got, "cpLoss=%d isForced=%v", c.cpLoss, c.isForced)
		// Determinism: same inputs always produce the same output.
		assert.Equal(t, got, Classify(c.cpLoss, c.isForced))
	}
}

func TestAccuracyIsBoundedAndMonotonic(t *testing.T) {
	perfect := Accuracy([]int{0, 0, 0})
	require.InDelta(t, 100, perfect, 0.01)

	good := Accuracy([]int{10, 20, 5})
	bad := Accuracy([]int{200, 300, 400})
	assert.Greater(t, good, bad)

	assert.GreaterOrEqual(t, good, 0.0)
	assert.LessOrEqual(t, good, 100.0)

	extreme := Accuracy([]int{100000})
	assert.GreaterOrEqual(t, extreme, 0.0)
	assert.LessOrEqual(t, extreme, 100.0)
}

func TestAccuracyOfEmptyReviewIsPerfect(t *testing.T) {
	assert.Equal(t, 100.0, Accuracy(nil))
}
