package verify

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
)

// Queue holds unconfirmed facts awaiting an independent second source.
// Items leave the queue only by Remove (consumed) or Expire (timed out).
type Queue struct {
	items   []model.QueueItem
	timeout time.Duration
	logger  *log.Logger
}

// NewQueue wraps items loaded from the store
func NewQueue(items []model.QueueItem, timeout time.Duration, logger *log.Logger) *Queue {
	q := &Queue{
		items:   make([]model.QueueItem, 0, len(items)),
		timeout: timeout,
		logger:  logging.Or(logger),
	}
	q.items = append(q.items, items...)
	return q
}

// Items returns a copy of the queued items in insertion order
func (q *Queue) Items() []model.QueueItem {
	out := make([]model.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items
func (q *Queue) Len() int {
	return len(q.items)
}

// Add appends an item
func (q *Queue) Add(item model.QueueItem) {
	q.items = append(q.items, item)
}

// Remove deletes the item with the given id and reports whether it was present
func (q *Queue) Remove(id string) bool {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Expire removes every item whose age at now has reached the timeout and
// returns the removed items
func (q *Queue) Expire(now time.Time) []model.QueueItem {
	cutoff := now.Add(-q.timeout)

	kept := q.items[:0]
	var expired []model.QueueItem
	for _, item := range q.items {
		if item.Timestamp.After(cutoff) {
			kept = append(kept, item)
			continue
		}
		expired = append(expired, item)
		q.logger.Info("expired from queue", "fact", logging.Short(item.Fact, 50), "source", item.SourceID, "age", now.Sub(item.Timestamp).Round(time.Minute))
	}
	q.items = kept

	return expired
}
