package outbox

import (
	"bytes"
	"context"
	"net/http"

	"github.com/praktikumlab/go-praktikum/logger"
)

// Sync tags understood by the flusher.
const (
	// TagSyncKuisData flushes queued quiz-attempt records.
	TagSyncKuisData = "sync-kuis-data"
	// TagSyncOfflineActions is accepted but not implemented.
	TagSyncOfflineActions = "sync-offline-actions"
)

// Flusher reacts to sync triggers by POSTing queued records to the backend.
// There is no backoff and no ordering guarantee across entries: a record that
// fails to post simply stays unsynced until the next trigger.
type Flusher struct {
	store    *Store
	endpoint string
	client   *http.Client
	log      logger.Logger
	triggers chan string
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithHTTPClient overrides the HTTP client used to post records.
func WithHTTPClient(c *http.Client) FlusherOption {
	return func(f *Flusher) { f.client = c }
}

// NewFlusher posts queued quiz attempts to endpoint when triggered.
func NewFlusher(store *Store, endpoint string, log logger.Logger, opts ...FlusherOption) *Flusher {
	f := &Flusher{
		store:    store,
		endpoint: endpoint,
		client:   http.DefaultClient,
		log:      log.With(map[string]interface{}{"component": "outbox"}),
		triggers: make(chan string, 16),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Trigger requests a sync for the given tag. It never blocks; when the
// trigger queue is full the tag is dropped (a later trigger flushes the same
// backlog anyway).
func (f *Flusher) Trigger(tag string) {
	select {
	case f.triggers <- tag:
	default:
	}
}

// Run processes sync triggers until ctx is cancelled.
func (f *Flusher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tag := <-f.triggers:
			switch tag {
			case TagSyncKuisData:
				synced, err := f.Flush(ctx)
				if err != nil {
					f.log.Warn("sync failed: %v", err)
					continue
				}
				f.log.Info("synced %d kuis attempts", synced)
			case TagSyncOfflineActions:
				f.log.Debug("sync tag %s is not implemented", tag)
			default:
				f.log.Warn("unknown sync tag %s", tag)
			}
		}
	}
}

// Flush posts every unsynced quiz attempt once and marks the successful ones.
// It returns how many records were synced.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	records, err := f.store.Unsynced(ctx, KindKuisAttempt)
	if err != nil {
		return 0, err
	}
	var synced int
	for _, rec := range records {
		if err := f.post(ctx, rec); err != nil {
			f.log.Debug("record %s stays queued: %v", rec.ID, err)
			continue
		}
		if err := f.store.MarkSynced(ctx, rec.ID); err != nil {
			f.log.Warn("marking record %s synced: %v", rec.ID, err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (f *Flusher) post(ctx context.Context, rec Record) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(rec.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
