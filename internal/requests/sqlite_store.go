package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	errx "github.com/civicdesk/server/internal/core/error"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Config locates the request database.
type Config struct {
	Path string `envconfig:"SQLITE_PATH" default:"data/requests.db"`
}

// SqliteStore implements request persistence using SQLite. Connections are
// short-lived statements over one pooled handle; no multi-statement
// transaction spans more than one record mutation.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the request database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open request store: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("request store: %s: %w", pragma, err)
		}
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("request store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS service_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		service_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		user_data TEXT NOT NULL DEFAULT '{}',
		session_id TEXT NOT NULL,
		namespace TEXT NOT NULL DEFAULT 'default',
		notes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON service_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON service_requests(created_at);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Create inserts a new pending request with a generated identifier.
func (s *SqliteStore) Create(ctx context.Context, in CreateInput) (*Record, error) {
	if in.UserData == nil {
		in.UserData = map[string]string{}
	}
	userData, err := json.Marshal(in.UserData)
	if err != nil {
		return nil, fmt.Errorf("marshal user data: %w", err)
	}
	namespace := in.Namespace
	if namespace == "" {
		namespace = "default"
	}

	now := time.Now().UTC()
	rec := &Record{
		RequestID:   uuid.NewString(),
		ServiceName: in.ServiceName,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserData:    in.UserData,
		SessionID:   in.SessionID,
		Namespace:   namespace,
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO service_requests
			(request_id, service_name, status, created_at, updated_at, user_data, session_id, namespace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.ServiceName, string(rec.Status),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
		string(userData), rec.SessionID, rec.Namespace,
	)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, errx.WrapDB(err)
	}
	return rec, nil
}

// GetByID fetches one record by its request identifier.
func (s *SqliteStore) GetByID(ctx context.Context, requestID string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, request_id, service_name, status, created_at, updated_at,
		       user_data, session_id, namespace, COALESCE(notes, '')
		FROM service_requests WHERE request_id = ?`, requestID)
	return scanRecord(row)
}

// List returns a newest-first page of records matching the filter plus the
// total match count.
func (s *SqliteStore) List(ctx context.Context, f ListFilter) ([]*Record, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ServiceName != "" {
		where = append(where, "service_name LIKE '%' || ? || '%'")
		args = append(args, f.ServiceName)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM service_requests"+clause, args...).Scan(&total); err != nil {
		return nil, 0, errx.WrapDB(err)
	}

	query := `
		SELECT id, request_id, service_name, status, created_at, updated_at,
		       user_data, session_id, namespace, COALESCE(notes, '')
		FROM service_requests` + clause + `
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.DB.QueryContext(ctx, query, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return nil, 0, errx.WrapDB(err)
	}
	defer rows.Close()

	records := make([]*Record, 0, f.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errx.WrapDB(err)
	}
	return records, total, nil
}

// UpdateStatus sets a record's status and optional notes, touching the
// update timestamp. A nil notes pointer leaves the existing notes alone.
func (s *SqliteStore) UpdateStatus(ctx context.Context, requestID string, status Status, notes *string) (*Record, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var (
		res sql.Result
		err error
	)
	if notes != nil {
		res, err = s.DB.ExecContext(ctx,
			"UPDATE service_requests SET status = ?, notes = ?, updated_at = ? WHERE request_id = ?",
			string(status), *notes, now, requestID)
	} else {
		res, err = s.DB.ExecContext(ctx,
			"UPDATE service_requests SET status = ?, updated_at = ? WHERE request_id = ?",
			string(status), now, requestID)
	}
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	if n == 0 {
		return nil, errx.WrapDB(sql.ErrNoRows)
	}
	return s.GetByID(ctx, requestID)
}

// Stats aggregates counts by status, the last week's volume and the
// per-service distribution.
func (s *SqliteStore) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{ServiceDistribution: []ServiceCount{}}

	rows, err := s.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM service_requests GROUP BY status")
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errx.WrapDB(err)
		}
		out.TotalRequests += count
		switch Status(status) {
		case StatusPending:
			out.PendingRequests = count
		case StatusInProgress:
			out.InProgressRequests = count
		case StatusCompleted:
			out.CompletedRequests = count
		case StatusRejected:
			out.RejectedRequests = count
		case StatusCancelled:
			out.CancelledRequests = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapDB(err)
	}

	weekAgo := time.Now().UTC().AddDate(0, 0, -7).Format(time.RFC3339)
	if err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM service_requests WHERE created_at >= ?", weekAgo,
	).Scan(&out.RecentRequestsWeek); err != nil {
		return nil, errx.WrapDB(err)
	}

	svcRows, err := s.DB.QueryContext(ctx,
		"SELECT service_name, COUNT(*) FROM service_requests GROUP BY service_name ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var sc ServiceCount
		if err := svcRows.Scan(&sc.ServiceName, &sc.Count); err != nil {
			return nil, errx.WrapDB(err)
		}
		out.ServiceDistribution = append(out.ServiceDistribution, sc)
	}
	if err := svcRows.Err(); err != nil {
		return nil, errx.WrapDB(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		status    string
		createdAt string
		updatedAt string
		userData  string
	)
	err := row.Scan(&rec.ID, &rec.RequestID, &rec.ServiceName, &status,
		&createdAt, &updatedAt, &userData, &rec.SessionID, &rec.Namespace, &rec.Notes)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	rec.Status = Status(status)
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(userData), &rec.UserData); err != nil {
		return nil, fmt.Errorf("parse user_data: %w", err)
	}
	return &rec, nil
}
