package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/onboardagent/agent"
	"github.com/tbxark/onboardagent/gateway"
	"github.com/tbxark/onboardagent/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "onboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Unix(1748000000, 0)
	session := agent.NewSession("u1", now)
	session.State = agent.StateAwaitingTruthLieConfirmation
	session.RetryCount = 2
	session.Collected = map[string]any{"name": "Jane Doe"}
	session.Pending = &agent.PendingPayload{
		Kind:     types.EventVoice,
		MIMEType: "audio/ogg",
		Data:     []byte("statements-audio"),
		Parsed:   map[string]any{"guessed_lie": "I can juggle"},
	}
	require.NoError(t, store.Put(ctx, session))

	loaded, ok, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, agent.StateAwaitingTruthLieConfirmation, loaded.State)
	assert.Equal(t, 2, loaded.RetryCount)
	assert.Equal(t, map[string]any{"name": "Jane Doe"}, loaded.Collected)
	require.NotNil(t, loaded.Pending)
	assert.Equal(t, types.EventVoice, loaded.Pending.Kind)
	assert.Equal(t, "audio/ogg", loaded.Pending.MIMEType)
	assert.Equal(t, []byte("statements-audio"), loaded.Pending.Data)
	assert.Equal(t, map[string]any{"guessed_lie": "I can juggle"}, loaded.Pending.Parsed)
	assert.Equal(t, now.Unix(), loaded.CreatedAt.Unix())
	assert.Equal(t, now.Unix(), loaded.UpdatedAt.Unix())
}

func TestSessionUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Unix(1748000000, 0)
	session := agent.NewSession("u1", now)
	require.NoError(t, store.Put(ctx, session))

	session.State = agent.StateProfileReady
	session.Pending = nil
	session.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Put(ctx, session))

	loaded, ok, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, agent.StateProfileReady, loaded.State)
	assert.Nil(t, loaded.Pending)
	assert.Equal(t, now.Unix(), loaded.CreatedAt.Unix(), "created_at survives the upsert")
	assert.Equal(t, now.Add(time.Minute).Unix(), loaded.UpdatedAt.Unix())
}

func TestIdleSince(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Unix(1748000000, 0)
	put := func(userID string, state agent.State, updatedAt time.Time) {
		session := agent.NewSession(userID, base)
		session.State = state
		session.UpdatedAt = updatedAt
		require.NoError(t, store.Put(ctx, session))
	}

	put("stale", agent.StateAwaitingNameInput, base)
	put("fresh", agent.StateAwaitingNameInput, base.Add(time.Hour))
	put("done", agent.StateProfileReady, base)
	put("gone", agent.StateAbandoned, base)

	idle, err := store.IdleSince(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1, "terminal and fresh sessions are excluded")
	assert.Equal(t, "stale", idle[0].UserID)
}

func TestExchangeAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Unix(1748000000, 0)
	first := &agent.Exchange{
		ID:         "ex-1",
		UserID:     "u1",
		PromptType: "name_input",
		InputParts: []string{"audio/ogg:16B", "text:Analyzing introduction audio"},
		Raw:        `{"name": "Jane"}`,
		Parsed:     map[string]any{"name": "Jane"},
		Status:     gateway.StatusOK,
		CreatedAt:  base,
	}
	second := &agent.Exchange{
		ID:         "ex-2",
		UserID:     "u1",
		PromptType: "truthnlie",
		InputParts: []string{"audio/ogg:20B"},
		Raw:        "not json",
		Status:     gateway.StatusExtractionFailed,
		Error:      "no JSON found in model response",
		CreatedAt:  base.Add(time.Minute),
	}
	other := &agent.Exchange{
		ID:         "ex-3",
		UserID:     "u2",
		PromptType: "name_input",
		InputParts: []string{"audio/ogg:8B"},
		Status:     gateway.StatusOK,
		CreatedAt:  base,
	}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	require.NoError(t, store.Append(ctx, other))

	entries, err := store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "ex-1", entries[0].ID)
	assert.Equal(t, "name_input", entries[0].PromptType)
	assert.Equal(t, first.InputParts, entries[0].InputParts)
	assert.Equal(t, first.Raw, entries[0].Raw)
	assert.Equal(t, map[string]any{"name": "Jane"}, entries[0].Parsed)
	assert.Equal(t, gateway.StatusOK, entries[0].Status)

	assert.Equal(t, "ex-2", entries[1].ID)
	assert.Equal(t, gateway.StatusExtractionFailed, entries[1].Status)
	assert.Equal(t, "no JSON found in model response", entries[1].Error)
	assert.Nil(t, entries[1].Parsed)

	none, err := store.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDuplicateExchangeIDRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	exchange := &agent.Exchange{
		ID: "ex-1", UserID: "u1", PromptType: "name_input",
		InputParts: []string{"text:hi"}, Status: gateway.StatusOK,
		CreatedAt: time.Unix(1748000000, 0),
	}
	require.NoError(t, store.Append(ctx, exchange))
	assert.Error(t, store.Append(ctx, exchange))
}
