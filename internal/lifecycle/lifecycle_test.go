package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShuttingDownFlag(t *testing.T) {
	t.Cleanup(func() { SetShuttingDown(false) })

	assert.False(t, IsShuttingDown())
	SetShuttingDown(true)
	assert.True(t, IsShuttingDown())
	SetShuttingDown(false)
	assert.False(t, IsShuttingDown())
}
