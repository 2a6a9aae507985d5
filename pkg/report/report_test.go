package report_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/report"
)

func TestMain(m *testing.M) {
	report.DisableOutput = true
	m.Run()
}

func TestPreviewPicksFirstKnownField(t *testing.T) {
	assert.Equal(t, "hello", report.Preview(map[string]any{"content": "hello"}))
	assert.Equal(t, "", report.Preview(map[string]any{"unrelated": "value"}))
}

func TestPreviewTruncatesLongValues(t *testing.T) {
	long := "this sentence is deliberately longer than forty characters"
	preview := report.Preview(map[string]any{"title": long})
	assert.LessOrEqual(t, len(preview), 40)
	assert.Contains(t, preview, "...")
}

func TestPayloadDiffEmptyWhenUnchanged(t *testing.T) {
	diff, err := report.PayloadDiff(map[string]any{"a": 1}, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestPayloadDiffNonEmptyWhenChanged(t *testing.T) {
	diff, err := report.PayloadDiff(map[string]any{"a": 1}, map[string]any{"a": 2})
	require.NoError(t, err)
	assert.NotEmpty(t, diff)
}

func TestEventDoesNotPanicWithoutPreviewableFields(t *testing.T) {
	assert.NotPanics(t, func() {
		report.Event(model.SyncEvent{Operation: model.OpCreate, EntityType: "Note", EntityID: "n1", SyncedAt: time.Now()})
	})
}

func TestConflictDetectedAndResolvedDoNotPanic(t *testing.T) {
	c := model.Conflict{
		ConflictID: "c1",
		EntityType: "Note",
		EntityID:   "n1",
		Events: [2]model.SyncEvent{
			{EventID: "e1", DeviceID: "d1"},
			{EventID: "e2", DeviceID: "d2"},
		},
	}
	assert.NotPanics(t, func() {
		report.ConflictDetected(c)
		report.ConflictResolved(c.ConflictID, model.StrategyLastWriteWins, "e3")
	})
}
