package outbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praktikumlab/go-praktikum/logger"
)

func TestEnqueueAndUnsynced(t *testing.T) {
	ctx := context.Background()
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Enqueue(ctx, KindKuisAttempt, []byte(`{"kuis_id":1,"score":80}`))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Synced)

	records, err := store.Unsynced(ctx, KindKuisAttempt)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	require.NoError(t, store.MarkSynced(ctx, rec.ID))
	records, err = store.Unsynced(ctx, KindKuisAttempt)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFlushMarksOnlySuccessful(t *testing.T) {
	ctx := context.Background()
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Enqueue(ctx, KindKuisAttempt, []byte(`{"kuis_id":1}`))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, KindKuisAttempt, []byte(`{"kuis_id":2}`))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, KindKuisAttempt, []byte(`{"kuis_id":3}`))
	require.NoError(t, err)

	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		mu.Lock()
		bodies = append(bodies, string(buf))
		mu.Unlock()
		// Reject the second record on this pass.
		if string(buf) == `{"kuis_id":2}` {
			http.Error(w, "conflict", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	f := NewFlusher(store, srv.URL, logger.NewTestLogger())
	synced, err := f.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)

	// The rejected record stays queued for the next trigger.
	records, err := store.Unsynced(ctx, KindKuisAttempt)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte(`{"kuis_id":2}`), records[0].Payload)

	// Second pass retries only the leftover, once.
	mu.Lock()
	bodies = nil
	mu.Unlock()
	synced, err = f.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, synced, "still rejected")
	mu.Lock()
	assert.Len(t, bodies, 1, "no retry within a single flush")
	mu.Unlock()
}

func TestFlushWithNetworkDownLeavesQueueIntact(t *testing.T) {
	ctx := context.Background()
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Enqueue(ctx, KindKuisAttempt, []byte(`{"kuis_id":9}`))
	require.NoError(t, err)

	f := NewFlusher(store, "http://127.0.0.1:1", logger.NewTestLogger())
	synced, err := f.Flush(ctx)
	require.NoError(t, err, "per-record failures do not fail the flush")
	assert.Equal(t, 0, synced)

	records, err := store.Unsynced(ctx, KindKuisAttempt)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRunHandlesTags(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	_, err = store.Enqueue(context.Background(), KindKuisAttempt, []byte(`{}`))
	require.NoError(t, err)

	f := NewFlusher(store, srv.URL, logger.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	f.Trigger(TagSyncKuisData)
	f.Trigger(TagSyncOfflineActions) // accepted no-op
	f.Trigger("bogus-tag")           // logged, ignored

	assert.Eventually(t, func() bool {
		records, err := store.Unsynced(context.Background(), KindKuisAttempt)
		return err == nil && len(records) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
