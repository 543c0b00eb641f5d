package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeInfo(id int) Info {
	return Info{ID: fmt.Sprintf("conn-%d", id)}
}

func infoIDs(items []Info) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer[Info](10)
	assert.Empty(t, rb.ReadAll())
}

func TestRingBuffer_PartialFill(t *testing.T) {
	rb := NewRingBuffer[Info](10)
	for i := 0; i < 5; i++ {
		rb.Write(makeInfo(i))
	}

	assert.Equal(t, 5, rb.Len())
	assert.Equal(t, []string{"conn-0", "conn-1", "conn-2", "conn-3", "conn-4"}, infoIDs(rb.ReadAll()))
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer[Info](5)
	for i := 0; i < 8; i++ {
		rb.Write(makeInfo(i))
	}

	assert.Equal(t, 5, rb.Len())
	// Oldest dropped.
	assert.Equal(t, []string{"conn-3", "conn-4", "conn-5", "conn-6", "conn-7"}, infoIDs(rb.ReadAll()))
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	rb := NewRingBuffer[Info](0)
	rb.Write(makeInfo(1))
	rb.Write(makeInfo(2))

	assert.Equal(t, []string{"conn-2"}, infoIDs(rb.ReadAll()))
}

func TestManager_HistoryRecordsClosedSessions(t *testing.T) {
	mgr := NewManager(NewTemplateStore(threeSteps()), 0)

	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)
	mgr.Complete(cmds[0].ID, true, "")
	mgr.Close(id)
	mgr.Close(id)

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
	assert.NotNil(t, history[0].ClosedAt)
	assert.Equal(t, 1, history[0].Completed)
	assert.Equal(t, 2, history[0].Pending)
}
