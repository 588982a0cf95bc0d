package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSaveLoadClear(t *testing.T) {
	store := NewCheckpointStore(testDB(t))

	cp, err := store.Load("daily")
	require.NoError(t, err)
	assert.Nil(t, cp, "missing checkpoint loads as nil")

	require.NoError(t, store.Save("daily", "MSFT", 120, 500))
	require.NoError(t, store.Save("daily", "NVDA", 180, 500))

	cp, err = store.Load("daily")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "NVDA", cp.LastKey)
	assert.Equal(t, 180, cp.ProcessedCount)
	assert.Equal(t, 500, cp.TotalCount)

	require.NoError(t, store.Clear("daily"))
	cp, err = store.Load("daily")
	require.NoError(t, err)
	assert.Nil(t, cp)

	// clearing again is not an error
	require.NoError(t, store.Clear("daily"))
}

func TestResumeAfterExcludesProcessedPrefix(t *testing.T) {
	work := []string{"AAPL", "MSFT", "NVDA", "TSLA"}

	resumed := ResumeAfter(work, "MSFT")
	assert.Equal(t, []string{"NVDA", "TSLA"}, resumed)

	// every element at or before the checkpoint is excluded
	for _, done := range work[:2] {
		assert.NotContains(t, resumed, done)
	}

	assert.Equal(t, work, ResumeAfter(work, ""))
	assert.Equal(t, work, ResumeAfter(work, "UNKNOWN"))
	assert.Empty(t, ResumeAfter(work, "TSLA"))
}
