// Package syncqueue is the durable outbox of sales waiting for remote
// confirmation. Entries live in the local cache as one JSON list and are
// replayed strictly in insertion order.
package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/xid"
)

type Replayer interface {
	InsertTransaction(ctx context.Context, ownerID string, tx domain.Transaction) (*domain.Transaction, error)
}

type OnlineChecker interface {
	Online() bool
}

type Queue struct {
	mu     sync.Mutex
	cache  cache.Store
	remote Replayer
	online OnlineChecker
	group  singleflight.Group
	logger *zap.Logger
	now    func() time.Time
}

func New(store cache.Store, remote Replayer, online OnlineChecker, logger *zap.Logger) *Queue {
	return &Queue{
		cache:  store,
		remote: remote,
		online: online,
		logger: logging.Named(logger, "syncqueue"),
		now:    time.Now,
	}
}

// Enqueue appends entry to the durable list. No deduplication is done; the
// remote insert is idempotent.
func (q *Queue) Enqueue(ctx context.Context, entry domain.SyncQueueEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("sync")
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = q.now().UTC()
	}
	entry.Payload = entry.Payload.Clone()

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return q.save(ctx, entries)
}

func (q *Queue) Pending(ctx context.Context) ([]domain.SyncQueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Pending(ctx)
	return len(entries), err
}

// Flush replays queued entries until the queue is empty or an entry fails.
// The failed entry and everything behind it stay queued. Concurrent callers
// share a single in-flight flush. It returns the number of entries replayed.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	v, err, _ := q.group.Do("flush", func() (any, error) {
		return q.flush(ctx)
	})
	processed, _ := v.(int)
	return processed, err
}

func (q *Queue) flush(ctx context.Context) (int, error) {
	processed := 0
	for {
		if q.online != nil && !q.online.Online() {
			return processed, nil
		}
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		entry, ok, err := q.head(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			if processed > 0 {
				q.logger.Info("sync queue drained", zap.Int("processed", processed))
			}
			return processed, nil
		}

		if err := q.replay(ctx, entry); err != nil {
			q.logger.Warn("sync replay failed",
				zap.String("entry_id", entry.ID),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
			return processed, &domain.SyncError{EntryID: entry.ID, Kind: entry.Kind, Err: err}
		}
		if err := q.remove(ctx, entry.ID); err != nil {
			return processed, err
		}
		processed++
	}
}

func (q *Queue) replay(ctx context.Context, entry domain.SyncQueueEntry) error {
	switch entry.Kind {
	case domain.SyncKindTransaction, domain.SyncKindServiceTransaction:
		_, err := q.remote.InsertTransaction(ctx, entry.OwnerID, entry.Payload)
		return domain.Remote("replay "+string(entry.Kind), err)
	default:
		return fmt.Errorf("unknown sync kind %q", entry.Kind)
	}
}

func (q *Queue) head(ctx context.Context) (domain.SyncQueueEntry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil || len(entries) == 0 {
		return domain.SyncQueueEntry{}, false, err
	}
	return entries[0], true, nil
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		if entry.ID == id {
			entries = append(entries[:i], entries[i+1:]...)
			return q.save(ctx, entries)
		}
	}
	return nil
}

func (q *Queue) load(ctx context.Context) ([]domain.SyncQueueEntry, error) {
	var entries []domain.SyncQueueEntry
	if _, err := cache.GetJSON(ctx, q.cache, cache.KeySyncQueue, &entries); err != nil {
		return nil, fmt.Errorf("load sync queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) save(ctx context.Context, entries []domain.SyncQueueEntry) error {
	if entries == nil {
		entries = []domain.SyncQueueEntry{}
	}
	if err := cache.SetJSON(ctx, q.cache, cache.KeySyncQueue, entries); err != nil {
		return fmt.Errorf("save sync queue: %w", err)
	}
	return nil
}
