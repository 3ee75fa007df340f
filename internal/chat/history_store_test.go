package chat

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewHistoryStore(client, nil)
}

func TestHistoryUnknownPatientIsEmpty(t *testing.T) {
	store := newTestHistoryStore(t)

	history, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryAppendAndLoad(t *testing.T) {
	store := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1",
		ChatMessage{Role: ChatRoleUser, Content: "I need paracetamol"},
		ChatMessage{Role: ChatRoleAssistant, Content: "How many packs?"},
	))
	require.NoError(t, store.Append(ctx, "p1",
		ChatMessage{Role: ChatRoleUser, Content: "2"},
	))

	history, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ChatRoleAssistant, history[1].Role)
	assert.Equal(t, "2", history[2].Content)
}

func TestHistoryTrimsToCap(t *testing.T) {
	store := newTestHistoryStore(t)
	ctx := context.Background()

	for i := 0; i < historyMaxMessages; i++ {
		require.NoError(t, store.Append(ctx, "p1",
			ChatMessage{Role: ChatRoleUser, Content: "ping"},
			ChatMessage{Role: ChatRoleAssistant, Content: "pong"},
		))
	}

	history, err := store.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, historyMaxMessages)
}

func TestHistoryIsolatedPerPatient(t *testing.T) {
	store := newTestHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1", ChatMessage{Role: ChatRoleUser, Content: "mine"}))

	other, err := store.Load(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
