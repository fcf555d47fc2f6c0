// Package sqlite is the single-node backend: inspectors, complaints and the
// rotation cursor in one SQLite file, via the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"inspector-rotation/internal/domain"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Store implements domain.InspectorRepository, domain.ComplaintRepository
// and domain.RotationStore on a single SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway database.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	logger = logger.With("component", "sqlite-store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS inspectors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS complaints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			subject TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			inspector_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			assigned_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_complaints_unassigned
			ON complaints(inspector_id, seq);

		CREATE TABLE IF NOT EXISTS rotation_state (
			name TEXT PRIMARY KEY,
			cursor INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Inspectors returns the store as a domain.InspectorRepository.
func (s *Store) Inspectors() domain.InspectorRepository { return inspectorRepo{s} }

// Complaints returns the store as a domain.ComplaintRepository.
func (s *Store) Complaints() domain.ComplaintRepository { return complaintRepo{s} }

// Rotation returns the store as a domain.RotationStore.
func (s *Store) Rotation() domain.RotationStore { return rotationStore{s} }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrBackendUnavailable, op, err)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

type inspectorRepo struct{ s *Store }

func (r inspectorRepo) Save(ctx context.Context, i *domain.Inspector) error {
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO inspectors (id, name, email, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		i.ID, i.Name, i.Email, i.Active, i.CreatedAt.UTC().Format(timeLayout), i.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return unavailable("saving inspector "+i.ID, err)
	}
	return nil
}

func (r inspectorRepo) Get(ctx context.Context, id string) (*domain.Inspector, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, email, active, created_at, updated_at FROM inspectors WHERE id = ?`, id)
	i, err := scanInspector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInspectorNotFound
	}
	if err != nil {
		return nil, unavailable("getting inspector "+id, err)
	}
	return i, nil
}

func (r inspectorRepo) List(ctx context.Context) ([]*domain.Inspector, error) {
	return r.query(ctx, `SELECT id, name, email, active, created_at, updated_at FROM inspectors ORDER BY id`)
}

func (r inspectorRepo) ListActive(ctx context.Context) ([]*domain.Inspector, error) {
	return r.query(ctx, `SELECT id, name, email, active, created_at, updated_at FROM inspectors WHERE active = 1 ORDER BY id`)
}

func (r inspectorRepo) query(ctx context.Context, q string) ([]*domain.Inspector, error) {
	rows, err := r.s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, unavailable("listing inspectors", err)
	}
	defer rows.Close()

	var out []*domain.Inspector
	for rows.Next() {
		i, err := scanInspector(rows)
		if err != nil {
			return nil, unavailable("scanning inspector", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing inspectors", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInspector(row scanner) (*domain.Inspector, error) {
	var (
		i                    domain.Inspector
		createdAt, updatedAt string
	)
	if err := row.Scan(&i.ID, &i.Name, &i.Email, &i.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return &i, nil
}

type complaintRepo struct{ s *Store }

const complaintColumns = `id, subject, description, inspector_id, created_at, assigned_at`

func (r complaintRepo) Create(ctx context.Context, c *domain.Complaint) error {
	res, err := r.s.db.ExecContext(ctx, `
		INSERT INTO complaints (id, subject, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, c.Subject, c.Description, c.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return unavailable("creating complaint "+c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("creating complaint "+c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrComplaintExists, c.ID)
	}
	return nil
}

func (r complaintRepo) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	row := r.s.db.QueryRowContext(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = ?`, id)
	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrComplaintNotFound
	}
	if err != nil {
		return nil, unavailable("getting complaint "+id, err)
	}
	return c, nil
}

func (r complaintRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.s.db.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id); err != nil {
		return unavailable("deleting complaint "+id, err)
	}
	return nil
}

func (r complaintRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Complaint, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	return r.query(ctx, `SELECT `+complaintColumns+` FROM complaints ORDER BY seq DESC LIMIT ?`, limit)
}

func (r complaintRepo) ListUnassigned(ctx context.Context) ([]*domain.Complaint, error) {
	return r.query(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE inspector_id = '' ORDER BY seq ASC`)
}

func (r complaintRepo) SetInspector(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time) error {
	res, err := r.s.db.ExecContext(ctx,
		`UPDATE complaints SET inspector_id = ?, assigned_at = ? WHERE id = ?`,
		inspectorID, assignedAt.UTC().Format(timeLayout), complaintID)
	if err != nil {
		return unavailable("assigning complaint "+complaintID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("assigning complaint "+complaintID, err)
	}
	if n == 0 {
		return domain.ErrComplaintNotFound
	}
	return nil
}

func (r complaintRepo) query(ctx context.Context, q string, args ...any) ([]*domain.Complaint, error) {
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("listing complaints", err)
	}
	defer rows.Close()

	var out []*domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, unavailable("scanning complaint", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing complaints", err)
	}
	return out, nil
}

func scanComplaint(row scanner) (*domain.Complaint, error) {
	var (
		c          domain.Complaint
		createdAt  string
		assignedAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Subject, &c.Description, &c.InspectorID, &createdAt, &assignedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	if assignedAt.Valid {
		c.AssignedAt = parseTime(assignedAt.String)
	}
	return &c, nil
}

type rotationStore struct{ s *Store }

const rotationName = "inspectors"

func (r rotationStore) Load(ctx context.Context) (domain.RotationState, bool, error) {
	var cursor int
	err := r.s.db.QueryRowContext(ctx, `SELECT cursor FROM rotation_state WHERE name = ?`, rotationName).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NoPriorAssignment, false, nil
	}
	if err != nil {
		return domain.NoPriorAssignment, false, unavailable("loading rotation cursor", err)
	}
	return domain.RotationState(cursor), true, nil
}

const upsertCursor = `
	INSERT INTO rotation_state (name, cursor, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`

func (r rotationStore) Store(ctx context.Context, state domain.RotationState) error {
	_, err := r.s.db.ExecContext(ctx, upsertCursor, rotationName, int(state), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return unavailable("storing rotation cursor", err)
	}
	return nil
}

// Commit writes the complaint's inspector and the cursor in one transaction.
func (r rotationStore) Commit(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time, next domain.RotationState) (err error) {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("starting assignment of "+complaintID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE complaints SET inspector_id = ?, assigned_at = ? WHERE id = ?`,
		inspectorID, assignedAt.UTC().Format(timeLayout), complaintID)
	if err != nil {
		return unavailable("assigning complaint "+complaintID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("assigning complaint "+complaintID, err)
	}
	if n == 0 {
		return domain.ErrComplaintNotFound
	}

	if _, err := tx.ExecContext(ctx, upsertCursor, rotationName, int(next), time.Now().UTC().Format(timeLayout)); err != nil {
		return unavailable("storing rotation cursor", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("committing assignment of "+complaintID, err)
	}
	return nil
}
