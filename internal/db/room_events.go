package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	KindRoomCreated  = "room_created"
	KindRoomClosed   = "room_closed"
	KindDrawingSaved = "drawing_saved"
)

type RoomEvent struct {
	RoomID     string
	Kind       string
	ConnID     string
	Detail     string
	Index      *int
	Bytes      *int
	OccurredAt time.Time
}

const insertRoomEvent = `
	INSERT INTO room_events (room_id, kind, conn_id, detail, drawing_index, drawing_bytes, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (d *DB) BatchRecordRoomEvents(ctx context.Context, events []RoomEvent) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRoomEvent)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.RoomID, ev.Kind, ev.ConnID, ev.Detail, nullInt(ev.Index), nullInt(ev.Bytes), ev.OccurredAt); err != nil {
			return fmt.Errorf("recording room event in batch: %w", err)
		}
	}

	return tx.Commit()
}

// RoomHistory returns every journalled event for roomID, oldest first.
func (d *DB) RoomHistory(ctx context.Context, roomID string) ([]RoomEvent, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT room_id, kind, conn_id, detail, drawing_index, drawing_bytes, occurred_at
		FROM room_events
		WHERE room_id = $1
		ORDER BY occurred_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying room history: %w", err)
	}
	defer rows.Close()

	var history []RoomEvent
	for rows.Next() {
		var ev RoomEvent
		var index, size sql.NullInt64
		if err := rows.Scan(&ev.RoomID, &ev.Kind, &ev.ConnID, &ev.Detail, &index, &size, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning room event: %w", err)
		}
		ev.Index = intPtr(index)
		ev.Bytes = intPtr(size)
		history = append(history, ev)
	}
	return history, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
