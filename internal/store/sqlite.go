package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS buildings (
	id             TEXT PRIMARY KEY,
	identity_key   TEXT NOT NULL UNIQUE,
	state          TEXT NOT NULL DEFAULT 'pending',
	email_sent     INTEGER NOT NULL DEFAULT 0,
	reply_received INTEGER NOT NULL DEFAULT 0,
	data           TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_logs (
	id                    TEXT PRIMARY KEY,
	building_identity_key TEXT NOT NULL REFERENCES buildings(identity_key),
	subject               TEXT NOT NULL,
	body                  TEXT NOT NULL,
	sent_at               DATETIME NOT NULL,
	delivery_status       TEXT NOT NULL DEFAULT 'pending',
	thread_id             TEXT,
	replied               INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_buildings_state ON buildings(state);
CREATE INDEX IF NOT EXISTS idx_email_logs_building ON email_logs(building_identity_key);
CREATE INDEX IF NOT EXISTS idx_email_logs_thread ON email_logs(thread_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBuilding(ctx context.Context, b *model.Building) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal building")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buildings (id, identity_key, state, email_sent, reply_received, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.IdentityKey, string(b.State), boolInt(b.EmailSent), boolInt(b.ReplyReceived),
		string(data), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &resilience.ConsistencyError{Op: "duplicate building insert", Key: b.IdentityKey}
		}
		return eris.Wrapf(err, "sqlite: insert building %s", b.IdentityKey)
	}
	return nil
}

func (s *SQLiteStore) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	return s.getBuilding(ctx, `SELECT data FROM buildings WHERE id = ?`, id)
}

func (s *SQLiteStore) GetBuildingByIdentityKey(ctx context.Context, key string) (*model.Building, error) {
	return s.getBuilding(ctx, `SELECT data FROM buildings WHERE identity_key = ?`, key)
}

func (s *SQLiteStore) getBuilding(ctx context.Context, query, arg string) (*model.Building, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get building")
	}
	var b model.Building
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal building")
	}
	return &b, nil
}

func (s *SQLiteStore) ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error) {
	query := `SELECT data FROM buildings`
	var args []any
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, st := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE state IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan building")
		}
		var b model.Building
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal building")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list buildings")
}

func (s *SQLiteStore) UpdateBuilding(ctx context.Context, b *model.Building) error {
	b.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal building")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE buildings SET state = ?, email_sent = ?, reply_received = ?, data = ?, updated_at = ?
		 WHERE identity_key = ?`,
		string(b.State), boolInt(b.EmailSent), boolInt(b.ReplyReceived),
		string(data), b.UpdatedAt, b.IdentityKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update building %s", b.IdentityKey)
	}
	return checkAffected(res, b.IdentityKey)
}

func (s *SQLiteStore) DeleteBuilding(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM email_logs WHERE building_identity_key IN (SELECT identity_key FROM buildings WHERE id = ?)`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete email logs for %s", id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM buildings WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete building %s", id)
	}
	return checkAffected(res, id)
}

func (s *SQLiteStore) CountByState(ctx context.Context) (map[model.BuildingState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM buildings GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by state")
	}
	defer rows.Close()

	counts := make(map[model.BuildingState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.BuildingState(state)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by state")
}

func (s *SQLiteStore) AppendEmailLog(ctx context.Context, log *model.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.SentAt.IsZero() {
		log.SentAt = time.Now().UTC()
	}
	if log.DeliveryStatus == "" {
		log.DeliveryStatus = model.DeliveryPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_logs (id, building_identity_key, subject, body, sent_at, delivery_status, thread_id, replied)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.BuildingIdentityKey, log.Subject, log.Body, log.SentAt,
		string(log.DeliveryStatus), log.ThreadID, boolInt(log.Replied),
	)
	return eris.Wrapf(err, "sqlite: append email log for %s", log.BuildingIdentityKey)
}

func (s *SQLiteStore) UpdateEmailLogStatus(ctx context.Context, id string, status model.DeliveryStatus, threadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_logs SET delivery_status = ?, thread_id = ? WHERE id = ? AND delivery_status = 'pending'`,
		string(status), threadID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email log %s", id)
	}
	return checkAffected(res, id)
}

func (s *SQLiteStore) ListEmailLogs(ctx context.Context, key string) ([]model.EmailLog, error) {
	return s.listEmailLogs(ctx,
		`SELECT id, building_identity_key, subject, body, sent_at, delivery_status, thread_id, replied
		 FROM email_logs WHERE building_identity_key = ? ORDER BY sent_at DESC`, key)
}

func (s *SQLiteStore) ListEmailLogsAwaitingReply(ctx context.Context) ([]model.EmailLog, error) {
	return s.listEmailLogs(ctx,
		`SELECT id, building_identity_key, subject, body, sent_at, delivery_status, thread_id, replied
		 FROM email_logs WHERE delivery_status = 'sent' AND replied = 0 AND thread_id IS NOT NULL AND thread_id != ''`)
}

func (s *SQLiteStore) listEmailLogs(ctx context.Context, query string, args ...any) ([]model.EmailLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list email logs")
	}
	defer rows.Close()

	var out []model.EmailLog
	for rows.Next() {
		var l model.EmailLog
		var status string
		var threadID sql.NullString
		var replied int
		if err := rows.Scan(&l.ID, &l.BuildingIdentityKey, &l.Subject, &l.Body, &l.SentAt, &status, &threadID, &replied); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email log")
		}
		l.DeliveryStatus = model.DeliveryStatus(status)
		l.ThreadID = threadID.String
		l.Replied = replied != 0
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list email logs")
}

func (s *SQLiteStore) MarkEmailLogReplied(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE email_logs SET replied = 1 WHERE thread_id = ?`, threadID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark replied %s", threadID)
	}
	return checkAffected(res, threadID)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
