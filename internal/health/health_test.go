package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorRate(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("openmeteo")
	tr.RecordSuccess("openmeteo")
	tr.RecordError("openmeteo")

	errs, total := tr.ErrorRate("openmeteo", time.Minute)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 3, total)

	errs, total = tr.ErrorRate("foreca", time.Minute)
	assert.Zero(t, errs)
	assert.Zero(t, total)
}

func TestStatuses(t *testing.T) {
	tr := NewTracker()
	tr.RecordSuccess("openmeteo")
	tr.RecordError("openmeteo")
	tr.RecordError("foreca")

	statuses := tr.Statuses(time.Minute)
	assert.Equal(t, "healthy", statuses["openmeteo"], "any success in the window counts as healthy")
	assert.Equal(t, "unhealthy", statuses["foreca"])
}

func TestAllUnhealthy(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.AllUnhealthy(time.Minute), "empty tracker is not unhealthy")

	tr.RecordError("foreca")
	tr.RecordError("azuremaps")
	assert.True(t, tr.AllUnhealthy(time.Minute))

	tr.RecordSuccess("openmeteo")
	assert.False(t, tr.AllUnhealthy(time.Minute))
}

func TestWindowExcludesOldOutcomes(t *testing.T) {
	tr := NewTracker()
	tr.RecordError("openmeteo")

	// A window shorter than the recording age sees nothing.
	time.Sleep(5 * time.Millisecond)
	errs, total := tr.ErrorRate("openmeteo", time.Nanosecond)
	assert.Zero(t, errs)
	assert.Zero(t, total)

	errs, total = tr.ErrorRate("openmeteo", time.Minute)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, total)
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.RecordError("foreca")
	tr.Reset()
	assert.Empty(t, tr.Statuses(time.Minute))
}
