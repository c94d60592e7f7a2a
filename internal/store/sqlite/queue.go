package sqlite

import (
	"context"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

const queueColumns = `id, event_type, payload, retry_count, completed, not_before, created_at`

func (s *Store) Enqueue(ctx context.Context, eventType string, payload []byte) (queue.Item, error) {
	now := s.millis()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (event_type, payload, not_before, created_at) VALUES (?, ?, ?, ?)`,
		eventType, payload, now, now)
	if err != nil {
		return queue.Item{}, storeErr(err, "enqueue item")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return queue.Item{}, storeErr(err, "enqueue item")
	}
	return queue.Item{
		ID:        id,
		EventType: eventType,
		Payload:   payload,
		NotBefore: time.UnixMilli(now),
		CreatedAt: time.UnixMilli(now),
	}, nil
}

func (s *Store) ItemsReadyToExecute(ctx context.Context) ([]queue.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE completed = 0 AND not_before <= ? ORDER BY id`,
		s.millis())
	if err != nil {
		return nil, storeErr(err, "query ready items")
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storeErr(err, "scan queue item")
		}
		items = append(items, it)
	}
	return items, storeErr(rows.Err(), "iterate queue items")
}

func scanItem(sc scanner) (queue.Item, error) {
	var (
		it                   queue.Item
		completed            int
		notBefore, createdAt int64
	)
	if err := sc.Scan(&it.ID, &it.EventType, &it.Payload, &it.RetryCount, &completed, &notBefore, &createdAt); err != nil {
		return queue.Item{}, err
	}
	it.Completed = completed != 0
	it.NotBefore = time.UnixMilli(notBefore)
	it.CreatedAt = time.UnixMilli(createdAt)
	return it, nil
}

// GetItem loads one queue item.
func (s *Store) GetItem(ctx context.Context, id int64) (queue.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id))
	if isNoRows(err) {
		return queue.Item{}, notFound("queue_item", id)
	}
	return it, storeErr(err, "get queue item")
}

func (s *Store) IsItemStillQueued(ctx context.Context, item queue.Item) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE id = ? AND completed = 0 AND retry_count = ?`,
		item.ID, item.RetryCount).Scan(&n)
	if err != nil && !isNoRows(err) {
		return false, storeErr(err, "check queue item")
	}
	return n > 0, nil
}

func (s *Store) Complete(ctx context.Context, item queue.Item) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET completed = 1 WHERE id = ? AND completed = 0`, item.ID)
	return rowsAffected(res, err, "complete queue item")
}

func (s *Store) IncreaseRetryCounter(ctx context.Context, item queue.Item, notBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET retry_count = retry_count + 1, not_before = ?
		 WHERE id = ? AND completed = 0 AND retry_count = ?`,
		notBefore.UnixMilli(), item.ID, item.RetryCount)
	return rowsAffected(res, err, "increase retry counter")
}

// QueueDepth counts uncompleted items per event type.
func (s *Store) QueueDepth(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM queue_items WHERE completed = 0 GROUP BY event_type`)
	if err != nil {
		return nil, storeErr(err, "query queue depth")
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, storeErr(err, "scan queue depth")
		}
		out[t] = n
	}
	return out, storeErr(rows.Err(), "iterate queue depth")
}
