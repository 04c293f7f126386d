package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// PgxIface is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on pgx.
type PostgresStore struct {
	pool PgxIface
}

// NewPostgres connects to the database at the given URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (or a mock in tests).
func NewPostgresFromPool(pool PgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS buildings (
	id             TEXT PRIMARY KEY,
	identity_key   TEXT NOT NULL UNIQUE,
	state          TEXT NOT NULL DEFAULT 'pending',
	email_sent     BOOLEAN NOT NULL DEFAULT FALSE,
	reply_received BOOLEAN NOT NULL DEFAULT FALSE,
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS email_logs (
	id                    TEXT PRIMARY KEY,
	building_identity_key TEXT NOT NULL REFERENCES buildings(identity_key) ON DELETE CASCADE,
	subject               TEXT NOT NULL,
	body                  TEXT NOT NULL,
	sent_at               TIMESTAMPTZ NOT NULL,
	delivery_status       TEXT NOT NULL DEFAULT 'pending',
	thread_id             TEXT,
	replied               BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_buildings_state ON buildings(state);
CREATE INDEX IF NOT EXISTS idx_email_logs_building ON email_logs(building_identity_key);
CREATE INDEX IF NOT EXISTS idx_email_logs_thread ON email_logs(thread_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateBuilding(ctx context.Context, b *model.Building) error {
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
		return eris.Wrap(err, "postgres: marshal building")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO buildings (id, identity_key, state, email_sent, reply_received, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.IdentityKey, string(b.State), b.EmailSent, b.ReplyReceived, data, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &resilience.ConsistencyError{Op: "duplicate building insert", Key: b.IdentityKey}
		}
		return eris.Wrapf(err, "postgres: insert building %s", b.IdentityKey)
	}
	return nil
}

func (s *PostgresStore) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	return s.getBuilding(ctx, `SELECT data FROM buildings WHERE id = $1`, id)
}

func (s *PostgresStore) GetBuildingByIdentityKey(ctx context.Context, key string) (*model.Building, error) {
	return s.getBuilding(ctx, `SELECT data FROM buildings WHERE identity_key = $1`, key)
}

func (s *PostgresStore) getBuilding(ctx context.Context, query, arg string) (*model.Building, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, query, arg).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get building")
	}
	var b model.Building
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal building")
	}
	return &b, nil
}

func (s *PostgresStore) ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error) {
	query := `SELECT data FROM buildings`
	var args []any
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		args = append(args, states)
		query += ` WHERE state = ANY($1)`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET $` + strconv.Itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buildings")
	}
	defer rows.Close()

	var out []model.Building
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan building")
		}
		var b model.Building
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal building")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list buildings")
}

func (s *PostgresStore) UpdateBuilding(ctx context.Context, b *model.Building) error {
	b.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal building")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE buildings SET state = $1, email_sent = $2, reply_received = $3, data = $4, updated_at = $5
		 WHERE identity_key = $6`,
		string(b.State), b.EmailSent, b.ReplyReceived, data, b.UpdatedAt, b.IdentityKey,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update building %s", b.IdentityKey)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteBuilding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM buildings WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete building %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByState(ctx context.Context) (map[model.BuildingState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM buildings GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by state")
	}
	defer rows.Close()

	counts := make(map[model.BuildingState]int)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.BuildingState(state)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by state")
}

func (s *PostgresStore) AppendEmailLog(ctx context.Context, log *model.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.SentAt.IsZero() {
		log.SentAt = time.Now().UTC()
	}
	if log.DeliveryStatus == "" {
		log.DeliveryStatus = model.DeliveryPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_logs (id, building_identity_key, subject, body, sent_at, delivery_status, thread_id, replied)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.BuildingIdentityKey, log.Subject, log.Body, log.SentAt,
		string(log.DeliveryStatus), log.ThreadID, log.Replied,
	)
	return eris.Wrapf(err, "postgres: append email log for %s", log.BuildingIdentityKey)
}

func (s *PostgresStore) UpdateEmailLogStatus(ctx context.Context, id string, status model.DeliveryStatus, threadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_logs SET delivery_status = $1, thread_id = $2 WHERE id = $3 AND delivery_status = 'pending'`,
		string(status), threadID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email log %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEmailLogs(ctx context.Context, key string) ([]model.EmailLog, error) {
	return s.listEmailLogs(ctx,
		`SELECT id, building_identity_key, subject, body, sent_at, delivery_status, COALESCE(thread_id, ''), replied
		 FROM email_logs WHERE building_identity_key = $1 ORDER BY sent_at DESC`, key)
}

func (s *PostgresStore) ListEmailLogsAwaitingReply(ctx context.Context) ([]model.EmailLog, error) {
	return s.listEmailLogs(ctx,
		`SELECT id, building_identity_key, subject, body, sent_at, delivery_status, COALESCE(thread_id, ''), replied
		 FROM email_logs WHERE delivery_status = 'sent' AND replied = FALSE AND thread_id IS NOT NULL AND thread_id != ''`)
}

func (s *PostgresStore) listEmailLogs(ctx context.Context, query string, args ...any) ([]model.EmailLog, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list email logs")
	}
	defer rows.Close()

	var out []model.EmailLog
	for rows.Next() {
		var l model.EmailLog
		var status string
		if err := rows.Scan(&l.ID, &l.BuildingIdentityKey, &l.Subject, &l.Body, &l.SentAt, &status, &l.ThreadID, &l.Replied); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email log")
		}
		l.DeliveryStatus = model.DeliveryStatus(status)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list email logs")
}

func (s *PostgresStore) MarkEmailLogReplied(ctx context.Context, threadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_logs SET replied = TRUE WHERE thread_id = $1`, threadID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark replied %s", threadID)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

