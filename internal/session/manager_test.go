package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func threeSteps() []Template {
	return []Template{
		{Type: "A", Value: strPtr("https://example.com")},
		{Type: "B", Selector: strPtr("#b")},
		{Type: "C"},
	}
}

func newTestManager(max int) *Manager {
	return NewManager(NewTemplateStore(threeSteps()), max)
}

func TestManager_OpenClonesTemplates(t *testing.T) {
	mgr := newTestManager(0)
	id, err := mgr.Open()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cmds, gen, err := mgr.Commands(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)
	require.Len(t, cmds, 3)

	canonical := mgr.templates.Snapshot()
	for i, cmd := range cmds {
		assert.Equal(t, canonical[i].Type, cmd.Type, "command %d", i)
		assert.NotEqual(t, canonical[i].ID, cmd.ID, "command %d reused the template ID", i)
		assert.Equal(t, StatusPending, cmd.Status, "command %d", i)
		assert.False(t, cmd.CreatedAt.IsZero(), "command %d created_at", i)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	mgr := newTestManager(0)
	a, _ := mgr.Open()
	b, _ := mgr.Open()

	cmdsA, _, _ := mgr.Commands(a)
	_, ok := mgr.Complete(cmdsA[0].ID, true, "")
	require.True(t, ok)

	cmdsB, _, _ := mgr.Commands(b)
	for _, cmd := range cmdsB {
		assert.Equal(t, StatusPending, cmd.Status, "session B command %s", cmd.ID)
		assert.NotEqual(t, cmdsA[0].ID, cmd.ID, "sessions share a command ID")
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)

	assert.True(t, mgr.Close(id))
	assert.False(t, mgr.Close(id), "second close should be a no-op")
	assert.Equal(t, 0, mgr.Count())

	_, _, ok := mgr.FindCommand(cmds[0].ID)
	assert.False(t, ok, "commands of a closed session should be unresolvable")

	_, _, err := mgr.Commands(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_CloseUnknown(t *testing.T) {
	mgr := newTestManager(0)
	assert.NotPanics(t, func() {
		assert.False(t, mgr.Close("nonexistent"))
	})
}

func TestManager_CloseClosesNotify(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	ch, err := mgr.Notify(id)
	require.NoError(t, err)
	mgr.Close(id)

	_, ok := <-ch
	assert.False(t, ok, "notify channel should be closed")
}

func TestManager_MaxSessionsLimit(t *testing.T) {
	mgr := newTestManager(1)
	_, err := mgr.Open()
	require.NoError(t, err)

	_, err = mgr.Open()
	assert.ErrorIs(t, err, ErrMaxSessions)
}

func TestManager_FindCommand(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)

	connID, cmd, ok := mgr.FindCommand(cmds[1].ID)
	require.True(t, ok)
	assert.Equal(t, id, connID)
	assert.Equal(t, "B", cmd.Type)

	_, _, ok = mgr.FindCommand("unknown")
	assert.False(t, ok)
}

func TestManager_CompleteTransitions(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)

	done, ok := mgr.Complete(cmds[0].ID, true, "")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	failed, _ := mgr.Complete(cmds[1].ID, false, "timeout")
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "timeout", failed.Error)

	// Resubmission overwrites, does not duplicate.
	again, _ := mgr.Complete(cmds[1].ID, true, "")
	assert.Equal(t, StatusCompleted, again.Status)
	after, _, _ := mgr.Commands(id)
	assert.Len(t, after, 3)
}

func TestManager_CompleteSignalsNotify(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)
	ch, _ := mgr.Notify(id)

	mgr.Complete(cmds[0].ID, true, "")

	select {
	case <-ch:
	default:
		t.Error("expected a pending notification")
	}
}

func TestManager_ConcurrentCompleteFindDuringClose(t *testing.T) {
	const sessions = 20
	mgr := newTestManager(0)

	owners := make(map[string]string)
	var ids []string
	for i := 0; i < sessions; i++ {
		id, err := mgr.Open()
		require.NoError(t, err)
		ids = append(ids, id)
		cmds, _, err := mgr.Commands(id)
		require.NoError(t, err)
		for _, cmd := range cmds {
			owners[cmd.ID] = id
		}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for round := 0; round < 50; round++ {
				for cmdID, owner := range owners {
					if cmd, ok := mgr.Complete(cmdID, (round+w)%2 == 0, ""); ok {
						assert.Equal(t, cmdID, cmd.ID)
					}
					if connID, cmd, ok := mgr.FindCommand(cmdID); ok {
						assert.Equal(t, owner, connID)
						assert.Equal(t, cmdID, cmd.ID)
					}
				}
			}
		}(w)
	}

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			mgr.Close(id)
		}(id)
	}

	assert.NotPanics(t, func() {
		close(start)
		wg.Wait()
	})

	assert.Equal(t, 0, mgr.Count())
	for cmdID := range owners {
		_, _, ok := mgr.FindCommand(cmdID)
		assert.False(t, ok)
		_, ok = mgr.Complete(cmdID, true, "")
		assert.False(t, ok)
	}
	assert.Len(t, mgr.History(), sessions)
}

func TestManager_ResetAll(t *testing.T) {
	mgr := newTestManager(0)
	id, _ := mgr.Open()
	cmds, _, _ := mgr.Commands(id)
	mgr.Complete(cmds[0].ID, false, "boom")

	assert.Equal(t, 1, mgr.ResetAll())

	after, gen, _ := mgr.Commands(id)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, StatusPending, after[0].Status)
	assert.Nil(t, after[0].CompletedAt)
	assert.Empty(t, after[0].Error)
}

func TestManager_ListAndGet(t *testing.T) {
	mgr := newTestManager(0)
	require.Empty(t, mgr.List())

	id, _ := mgr.Open()
	infos := mgr.List()
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].Total)
	assert.Equal(t, 3, infos[0].Pending)

	_, err := mgr.Get(id)
	assert.NoError(t, err)
	_, err = mgr.Get("nonexistent")
	assert.Error(t, err)
}

func TestManager_ConcurrentOpenCloseUniqueIDs(t *testing.T) {
	mgr := newTestManager(0)

	var wg sync.WaitGroup
	ids := make(chan string, 200)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := mgr.Open()
			if !assert.NoError(t, err) {
				return
			}
			if i%2 == 0 {
				mgr.Close(id)
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]string)
	for id := range ids {
		cmds, _, err := mgr.Commands(id)
		require.NoError(t, err)
		for _, cmd := range cmds {
			owner, dup := seen[cmd.ID]
			require.False(t, dup, "command ID %s shared by %s and %s", cmd.ID, owner, id)
			seen[cmd.ID] = id
		}
	}
	assert.Len(t, seen, 50*3)
}

func TestManager_ShutdownClosesAll(t *testing.T) {
	mgr := newTestManager(0)
	for i := 0; i < 3; i++ {
		_, err := mgr.Open()
		require.NoError(t, err)
	}
	mgr.Shutdown()
	assert.Equal(t, 0, mgr.Count())
}

func TestTemplateStore_DefineAndCounts(t *testing.T) {
	ts := NewTemplateStore(threeSteps())
	c := ts.Counts()
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 3, c.Pending)

	ts.Define([]Template{{Type: "only"}})
	require.Equal(t, 1, ts.Len())
	assert.Equal(t, "only", ts.Templates()[0].Type)
}

func TestTemplateStore_ResetKeepsFullPendingCount(t *testing.T) {
	ts := NewTemplateStore(threeSteps())
	ts.Reset()
	assert.Equal(t, 3, ts.PendingCount())

	mgr := NewManager(ts, 0)
	id, _ := mgr.Open()
	info, _ := mgr.Get(id)
	assert.Equal(t, 3, info.Pending)
}

func TestStatus_Terminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:   false,
		StatusCompleted: true,
		StatusFailed:    true,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.Terminal(), "%s.Terminal()", status)
	}
}
