package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndEventsForSlot(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Record("slot-1", KindSlotCreated, ""))
	require.NoError(t, l.Record("slot-1", KindSlotWarm, ""))
	require.NoError(t, l.Record("slot-2", KindSlotCreated, ""))

	events, err := l.EventsForSlot("slot-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindSlotCreated, events[0].Kind)
	assert.Equal(t, KindSlotWarm, events[1].Kind)
}

func TestRecordRejectsEmptySlotID(t *testing.T) {
	l := openTestLedger(t)
	err := l.Record("", KindSlotCreated, "")
	assert.Error(t, err)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Record("slot-1", KindSlotCreated, ""))
	require.NoError(t, l.Record("slot-1", KindSlotWarm, ""))
	require.NoError(t, l.Record("slot-1", KindSlotDead, "released"))

	events, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindSlotDead, events[0].Kind)
	assert.Equal(t, KindSlotWarm, events[1].Kind)
}

func TestEventsForUnknownSlotIsEmpty(t *testing.T) {
	l := openTestLedger(t)
	events, err := l.EventsForSlot("nope")
	require.NoError(t, err)
	assert.Empty(t, events)
}
