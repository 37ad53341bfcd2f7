package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sitebot/internal/domain"
)

// SQLiteStore implements domain.Store using SQLite. A single connection
// serializes all reads and writes, which also gives the per-user
// read-modify-write ordering the onboarding flow relies on.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		external_id  TEXT NOT NULL UNIQUE,
		name         TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS onboarding (
		user_id      TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		stage        TEXT NOT NULL,
		collected    TEXT NOT NULL DEFAULT '{}',
		completed_at DATETIME,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type        TEXT,
		location    TEXT,
		start_date  TEXT,
		budget_raw  TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id, created_at);

	CREATE TABLE IF NOT EXISTS budgets (
		user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		amount     REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS expenses (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount      REAL NOT NULL,
		description TEXT,
		category    TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_user ON expenses(user_id, created_at);

	CREATE TABLE IF NOT EXISTS tasks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		priority   TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS images (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		media_ref  TEXT NOT NULL,
		caption    TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LookupUser(ctx context.Context, externalID string) (*domain.UserProfile, error) {
	var (
		u           domain.UserProfile
		name        sql.NullString
		stage       sql.NullString
		collected   sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.external_id, u.name, o.stage, o.collected, o.completed_at
		FROM users u LEFT JOIN onboarding o ON o.user_id = u.id
		WHERE u.external_id = ?`, externalID,
	).Scan(&u.ID, &u.ExternalID, &name, &stage, &collected, &completedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Name = name.String
	u.Onboarding = domain.OnboardingState{Stage: domain.StageNone, Collected: map[string]string{}}
	if stage.Valid && stage.String != "" {
		u.Onboarding.Stage = domain.OnboardingStage(stage.String)
	}
	if collected.Valid && collected.String != "" {
		if err := json.Unmarshal([]byte(collected.String), &u.Onboarding.Collected); err != nil {
			s.logger.Warn("corrupt onboarding payload, resetting", "user", u.ID, "err", err)
			u.Onboarding.Collected = map[string]string{}
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		u.Onboarding.CompletedAt = &t
	}
	return &u, nil
}

func (s *SQLiteStore) RegisterUser(ctx context.Context, externalID, name string) (*domain.UserProfile, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, name) VALUES (?, ?, ?)
		 ON CONFLICT(external_id) DO NOTHING`,
		id, externalID, name,
	); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	return s.LookupUser(ctx, externalID)
}

func (s *SQLiteStore) LoadAccountContext(ctx context.Context, userID string) (domain.AccountContext, error) {
	acct := domain.AccountContext{CategoryTotals: map[string]float64{}}

	var projID, projType, projLocation sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, location FROM projects
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	).Scan(&projID, &projType, &projLocation)
	if err != nil && err != sql.ErrNoRows {
		return acct, err
	}
	if projID.Valid {
		acct.DefaultProjectID = projID.String
		acct.ProjectName = strings.TrimSpace(projType.String + " " + projLocation.String)
	}

	var budget sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT amount FROM budgets WHERE user_id = ?`, userID,
	).Scan(&budget)
	if err != nil && err != sql.ErrNoRows {
		return acct, err
	}
	acct.BudgetAmount = budget.Float64

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, SUM(amount) FROM expenses
		WHERE user_id = ? GROUP BY category`, userID)
	if err != nil {
		return acct, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var total float64
		if err := rows.Scan(&category, &total); err != nil {
			return acct, err
		}
		acct.CategoryTotals[category] = total
		acct.TotalSpent += total
	}
	return acct, rows.Err()
}

func (s *SQLiteStore) ApplyMutation(ctx context.Context, userID string, m domain.Mutation) error {
	switch mut := m.(type) {
	case domain.RecordExpense:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO expenses (user_id, amount, description, category) VALUES (?, ?, ?, ?)`,
			userID, mut.Amount, mut.Description, mut.Category)
		return err

	case domain.CreateTask:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tasks (user_id, title, priority) VALUES (?, ?, ?)`,
			userID, mut.Title, string(mut.Priority))
		return err

	case domain.UpdateBudget:
		return s.setBudget(ctx, userID, mut.Amount)

	case domain.CreateProject:
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO projects (id, user_id, type, location, start_date, budget_raw)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), userID, mut.Type, mut.Location, mut.StartDate, mut.Budget,
		); err != nil {
			return err
		}
		// A numeric onboarding budget answer becomes the tracked budget.
		if v, err := strconv.ParseFloat(strings.ReplaceAll(mut.Budget, ",", ""), 64); err == nil && v > 0 {
			return s.setBudget(ctx, userID, v)
		}
		return nil

	case domain.StoreImage:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO images (user_id, media_ref, caption) VALUES (?, ?, ?)`,
			userID, mut.MediaRef, mut.Caption)
		return err

	default:
		return fmt.Errorf("unsupported mutation kind %q", m.MutationKind())
	}
}

// setBudget replaces the tracked budget outright, last-write-wins.
func (s *SQLiteStore) setBudget(ctx context.Context, userID string, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, amount, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		userID, amount, time.Now())
	return err
}

// PersistOnboardingState overwrites the stored state whole; the machine
// never partially mutates a record.
func (s *SQLiteStore) PersistOnboardingState(ctx context.Context, userID string, state domain.OnboardingState) error {
	collected, err := json.Marshal(state.Collected)
	if err != nil {
		return fmt.Errorf("encode onboarding payload: %w", err)
	}

	var completedAt any
	if state.CompletedAt != nil {
		completedAt = *state.CompletedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO onboarding (user_id, stage, collected, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stage = excluded.stage,
			collected = excluded.collected,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		userID, string(state.Stage), string(collected), completedAt, time.Now())
	return err
}
