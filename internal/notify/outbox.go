package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// LogEntry is one row of the append-only event_log table.
type LogEntry struct {
	Seq       int64     `json:"seq"`
	SiteID    string    `json:"site_id"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	DataJSON  string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Outbox records every event in event_log so downstream consumers can replay
// them by sequence number.
type Outbox struct {
	db     *sql.DB
	siteID string
}

func NewOutbox(db *sql.DB, siteID string) *Outbox {
	if siteID == "" {
		siteID = "local"
	}
	return &Outbox{db: db, siteID: siteID}
}

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Deliver(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		o.siteID, ev.Type, ev.ID, string(raw), ev.CreatedAt.UnixMilli())
	return err
}

// Since returns up to limit entries with a sequence number above after.
func (o *Outbox) Since(ctx context.Context, after int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var created int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
