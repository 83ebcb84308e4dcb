package db

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"telestrations/internal/drawings"
)

const (
	journalBuffer    = 1000
	journalBatchSize = 50
	journalFlush     = 500 * time.Millisecond
)

type batchWriter interface {
	BatchRecordRoomEvents(ctx context.Context, events []RoomEvent) error
}

// Journal queues room events and writes them in batches from Run. Producers
// never block: events arriving while the buffer is full are dropped.
type Journal struct {
	w       batchWriter
	buffer  chan RoomEvent
	dropped atomic.Int64
	log     *logrus.Entry
}

func NewJournal(d *DB) *Journal {
	return newJournal(d, journalBuffer)
}

func newJournal(w batchWriter, size int) *Journal {
	return &Journal{
		w:      w,
		buffer: make(chan RoomEvent, size),
		log:    logrus.WithField("component", "journal"),
	}
}

func (j *Journal) RoomCreated(roomID, hostID string) {
	j.enqueue(RoomEvent{RoomID: roomID, Kind: KindRoomCreated, ConnID: hostID})
}

func (j *Journal) RoomClosed(roomID, reason string) {
	j.enqueue(RoomEvent{RoomID: roomID, Kind: KindRoomClosed, Detail: reason})
}

func (j *Journal) DrawingSaved(roomID string, d drawings.Drawing) {
	index, size := d.Index, d.Size
	j.enqueue(RoomEvent{
		RoomID: roomID,
		Kind:   KindDrawingSaved,
		ConnID: d.ConnID,
		Detail: fmt.Sprintf("%s %dx%d", d.MediaType, d.Width, d.Height),
		Index:  &index,
		Bytes:  &size,
	})
}

// Dropped reports how many events were discarded because the buffer was full.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) enqueue(ev RoomEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	select {
	case j.buffer <- ev:
	default:
		j.dropped.Add(1)
		j.log.WithFields(logrus.Fields{"room_id": ev.RoomID, "kind": ev.Kind}).Warn("Journal buffer full, dropping event")
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(journalFlush)
	defer ticker.Stop()

	batch := make([]RoomEvent, 0, journalBatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := j.w.BatchRecordRoomEvents(ctx, batch); err != nil {
			j.log.WithError(err).WithField("events", len(batch)).Error("BatchRecordRoomEvents failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-j.buffer:
			batch = append(batch, ev)
			if len(batch) >= journalBatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case ev := <-j.buffer:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(shutdown)
			cancel()
			return
		}
	}
}
