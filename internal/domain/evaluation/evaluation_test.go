package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassDoesNotMeet, Classify(0))
	assert.Equal(t, ClassDoesNotMeet, Classify(0.1999))
	assert.Equal(t, ClassInsufficient, Classify(0.2))
	assert.Equal(t, ClassRegular, Classify(0.5))
	assert.Equal(t, ClassGood, Classify(0.75))
	assert.Equal(t, ClassExcellent, Classify(0.8))
	assert.Equal(t, ClassExcellent, Classify(1))
}

func TestOptionWeights(t *testing.T) {
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	for i, opt := range Options {
		w, ok := opt.Weight()
		assert.True(t, ok, opt)
		assert.Equal(t, want[i], w, opt)
	}
	_, ok := AnswerOption("Ótimo").Weight()
	assert.False(t, ok)
}

func TestCycleHasEnded(t *testing.T) {
	c := &Cycle{EndDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)}

	assert.False(t, c.HasEnded(time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)))
	assert.True(t, c.HasEnded(time.Date(2025, 7, 1, 0, 1, 0, 0, time.UTC)))
	assert.False(t, c.HasEnded(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCycleHasEndedAcrossTimezones(t *testing.T) {
	// lib/pq decodes DATE columns as midnight UTC.
	c := &Cycle{EndDate: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)}
	brt := time.FixedZone("BRT", -3*60*60)

	assert.False(t, c.HasEnded(time.Date(2026, 10, 17, 10, 0, 0, 0, brt)), "last day in a negative offset")
	assert.False(t, c.HasEnded(time.Date(2026, 10, 17, 23, 59, 0, 0, brt)))
	assert.True(t, c.HasEnded(time.Date(2026, 10, 18, 0, 0, 0, 0, brt)))

	ist := time.FixedZone("IST", 5*60*60+30*60)
	assert.False(t, c.HasEnded(time.Date(2026, 10, 17, 1, 0, 0, 0, ist)), "last day in a positive offset")
	assert.True(t, c.HasEnded(time.Date(2026, 10, 18, 1, 0, 0, 0, ist)))
}
