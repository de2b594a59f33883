package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleton_InitAndActive(t *testing.T) {
	first := Init(testCfg())
	t.Cleanup(first.Shutdown)
	require.Same(t, first, Active())

	first.RecordHolonCreated("PERSON", true)
	assert.Equal(t, int64(1), Active().BusinessMetrics().HolonsCreated["PERSON"])

	second := Init(testCfg())
	t.Cleanup(second.Shutdown)
	require.Same(t, second, Active(), "reinitialization replaces the global")
	assert.NotSame(t, first, second)
	assert.Empty(t, second.BusinessMetrics().HolonsCreated)
}
