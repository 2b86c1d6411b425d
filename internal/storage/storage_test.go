package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	type payload struct {
		Value string `json:"value"`
	}

	require.NoError(t, s.Put(ctx, []string{"a", "b"}, payload{Value: "x"}))

	var got payload
	require.NoError(t, s.Get(ctx, []string{"a", "b"}, &got))
	assert.Equal(t, "x", got.Value)

	require.NoError(t, s.Delete(ctx, []string{"a", "b"}))
	assert.ErrorIs(t, s.Get(ctx, []string{"a", "b"}, &got), ErrNotFound)

	// Deleting again is fine.
	assert.NoError(t, s.Delete(ctx, []string{"a", "b"}))
}

func TestList(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"dir", "b"}, 1))
	require.NoError(t, s.Put(ctx, []string{"dir", "a"}, 2))

	keys, err := s.List(ctx, []string{"dir"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	keys, err = s.List(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSaveTurnAndTurns(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.SaveTurn(ctx, TurnRecord{
		SessionID: "s1",
		TurnID:    "01A",
		Calls: []CallRecord{
			{CallID: "c1", ToolName: "Bash", Outcome: "executed"},
		},
	}))
	require.NoError(t, s.SaveTurn(ctx, TurnRecord{
		SessionID:   "s1",
		TurnID:      "01B",
		Continued:   true,
		Instruction: "run the tests first",
	}))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "01A", turns[0].TurnID)
	assert.False(t, turns[0].Time.IsZero())
	assert.Equal(t, "Bash", turns[0].Calls[0].ToolName)
	assert.True(t, turns[1].Continued)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, sessions)
}

func TestSaveTurnRequiresIDs(t *testing.T) {
	s := New(t.TempDir())
	assert.Error(t, s.SaveTurn(context.Background(), TurnRecord{SessionID: "s1"}))
	assert.Error(t, s.SaveTurn(context.Background(), TurnRecord{TurnID: "t1"}))
}

func TestConcurrentPuts(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, []string{"shared"}, n))
		}(i)
	}
	wg.Wait()

	var got int
	require.NoError(t, s.Get(ctx, []string{"shared"}, &got))
	assert.GreaterOrEqual(t, got, 0)
	assert.Less(t, got, 10)
}

func TestFileLockTryLock(t *testing.T) {
	path := t.TempDir() + "/data.json"
	a := NewFileLock(path)
	b := NewFileLock(path)

	require.NoError(t, a.Lock())
	assert.False(t, b.TryLock())
	require.NoError(t, a.Unlock())

	assert.True(t, b.TryLock())
	require.NoError(t, b.Unlock())
}
