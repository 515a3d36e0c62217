package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/events"
)

func TestCollectorRegistersAllMetrics(t *testing.T) {
	c := New(events.NewBus())
	families, err := c.Registry.Gather()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(families), 7)
}

func TestQueueDepthGaugeSettable(t *testing.T) {
	c := New(events.NewBus())
	c.QueueDepth.Set(5)
	assert.Equal(t, 5.0, fetchGaugeValue(c.QueueDepth))
}
