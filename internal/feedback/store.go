// Package feedback records clinician corrections to analyses.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEmptyFeedback = errors.New("feedback is required")

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `CREATE TABLE IF NOT EXISTS triage_feedback (
	id         UUID PRIMARY KEY,
	user_id    TEXT NOT NULL,
	feedback   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

const insertFeedback = `INSERT INTO triage_feedback (id, user_id, feedback, created_at) VALUES ($1, $2, $3, $4)`

// Entry is one stored feedback record.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Feedback  map[string]any `json:"feedback"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Store struct {
	db  DB
	now func() time.Time
}

func NewStore(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the feedback table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create feedback table: %w", err)
	}
	return nil
}

// Save stores feedback for userID. An empty userID is recorded as "demo".
func (s *Store) Save(ctx context.Context, userID string, fb map[string]any) (Entry, error) {
	if len(fb) == 0 {
		return Entry{}, ErrEmptyFeedback
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "demo"
	}
	e := Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Feedback:  fb,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.db.Exec(ctx, insertFeedback, e.ID, e.UserID, e.Feedback, e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("insert feedback: %w", err)
	}
	return e, nil
}
