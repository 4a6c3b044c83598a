package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"funnel-backend/internal/store"
)

// EventBuffer batches instrumentation events and flushes them to the
// _events table in the background. Enqueue never blocks the caller;
// events are dropped when the buffer is full.
type EventBuffer struct {
	st       *store.Store
	ch       chan Event
	interval time.Duration
	wg       sync.WaitGroup
	done     chan struct{}
	once     sync.Once
}

// NewEventBuffer creates an EventBuffer with the given capacity and flush interval.
func NewEventBuffer(st *store.Store, size int, interval time.Duration) *EventBuffer {
	if size <= 0 {
		size = 500
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &EventBuffer{
		st:       st,
		ch:       make(chan Event, size),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background flusher goroutine.
func (b *EventBuffer) Start() {
	b.wg.Add(1)
	go b.run()
}

// Stop drains remaining events and stops the flusher.
func (b *EventBuffer) Stop() {
	b.once.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

// Enqueue adds an event to the buffer, dropping it if the buffer is full.
func (b *EventBuffer) Enqueue(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case b.ch <- event:
	default:
		// Buffer full. Instrumentation must never block the request path.
	}
}

func (b *EventBuffer) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case ev := <-b.ch:
			batch = append(batch, ev)
			if len(batch) >= 100 {
				b.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = nil
			}
		case <-b.done:
			// Drain whatever is still queued before exiting
			for {
				select {
				case ev := <-b.ch:
					batch = append(batch, ev)
				default:
					if len(batch) > 0 {
						b.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (b *EventBuffer) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := b.st.BeginTx(ctx)
	if err != nil {
		log.Printf("ERROR: event buffer begin tx: %v", err)
		return
	}
	defer tx.Rollback()

	for _, ev := range batch {
		metaJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			metaJSON = []byte("{}")
		}
		pb := b.st.Dialect.NewParamBuilder()
		query := fmt.Sprintf(`INSERT INTO _events
			(id, trace_id, span_id, parent_span_id, event_type, source, component, action,
			 entity, record_id, user_id, duration_ms, status, metadata, created_at)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(store.GenerateUUID()), pb.Add(ev.TraceID), pb.Add(ev.SpanID),
			pb.Add(ev.ParentSpanID), pb.Add(ev.EventType), pb.Add(ev.Source),
			pb.Add(ev.Component), pb.Add(ev.Action), pb.Add(ev.Entity),
			pb.Add(ev.RecordID), pb.Add(ev.UserID), pb.Add(ev.DurationMs),
			pb.Add(ev.Status), pb.Add(string(metaJSON)), pb.Add(ev.CreatedAt))
		if _, err := tx.ExecContext(ctx, query, pb.Params()...); err != nil {
			log.Printf("ERROR: event buffer insert: %v", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: event buffer commit: %v", err)
	}
}
