package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 50

// SQLiteStore implements LeadRepository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed lead repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		id_number TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		emergency_contact_name TEXT NOT NULL,
		emergency_contact_phone TEXT NOT NULL,
		preferred_course TEXT NOT NULL,
		preferred_intake TEXT NOT NULL,
		additional_notes TEXT NOT NULL DEFAULT '',
		catalog_course TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		escalation_url TEXT NOT NULL,
		submitted_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_submitted ON leads(submitted_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveLead writes a lead.
func (s *SQLiteStore) SaveLead(ctx context.Context, lead *domain.StoredLead) error {
	query := `
		INSERT INTO leads (
			id, full_name, date_of_birth, id_number, phone_number, email,
			emergency_contact_name, emergency_contact_phone,
			preferred_course, preferred_intake, additional_notes,
			catalog_course, language, escalation_url, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	l := lead.Lead
	_, err := s.db.ExecContext(ctx, query,
		lead.ID, l.FullName, l.DateOfBirth, l.IDNumber, l.PhoneNumber, l.Email,
		l.EmergencyContactName, l.EmergencyContactPhone,
		l.PreferredCourse, l.PreferredIntake, l.AdditionalNotes,
		lead.CatalogCourse, lead.Language, lead.EscalationURL, lead.SubmittedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

const selectLead = `
	SELECT id, full_name, date_of_birth, id_number, phone_number, email,
	       emergency_contact_name, emergency_contact_phone,
	       preferred_course, preferred_intake, additional_notes,
	       catalog_course, language, escalation_url, submitted_at
	FROM leads`

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*domain.StoredLead, error) {
	var lead domain.StoredLead
	var submittedAt int64
	l := &lead.Lead
	err := row.Scan(
		&lead.ID, &l.FullName, &l.DateOfBirth, &l.IDNumber, &l.PhoneNumber, &l.Email,
		&l.EmergencyContactName, &l.EmergencyContactPhone,
		&l.PreferredCourse, &l.PreferredIntake, &l.AdditionalNotes,
		&lead.CatalogCourse, &lead.Language, &lead.EscalationURL, &submittedAt,
	)
	if err != nil {
		return nil, err
	}
	lead.SubmittedAt = time.UnixMilli(submittedAt)
	return &lead, nil
}

// GetLead retrieves a lead by ID.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*domain.StoredLead, error) {
	lead, err := scanLead(s.db.QueryRowContext(ctx, selectLead+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead row: %w", err)
	}
	return lead, nil
}

// ListLeads returns the most recent leads, newest first.
func (s *SQLiteStore) ListLeads(ctx context.Context, limit int) ([]*domain.StoredLead, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectLead+` ORDER BY submitted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var leads []*domain.StoredLead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}
