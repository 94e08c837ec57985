// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/formfill/internal/domain"
)

// Repository defines the interface for persisting sessions, run audit
// records and the remote ids the service creates.
type Repository interface {
	// CreateSession records a newly created thread.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by thread ID. Returns nil if unknown.
	GetSession(ctx context.Context, threadID string) (*domain.Session, error)

	// TouchSession updates last_used_at for a session.
	TouchSession(ctx context.Context, threadID string, at time.Time) error

	// RecordRun stores the outcome of one orchestrated run.
	RecordRun(ctx context.Context, run *domain.RunRecord) error

	// ListRuns returns the runs of a thread, oldest first.
	ListRuns(ctx context.Context, threadID string) ([]*domain.RunRecord, error)

	// SaveFormSubmission stores form values captured from fill_forms.
	SaveFormSubmission(ctx context.Context, sub *domain.FormSubmission) error

	// LatestFormSubmission returns the newest submission of a thread, or nil.
	LatestFormSubmission(ctx context.Context, threadID string) (*domain.FormSubmission, error)

	// GetAssistant retrieves a stored assistant by definition name.
	GetAssistant(ctx context.Context, name string) (*domain.AssistantRecord, error)

	// UpsertAssistant creates or replaces a stored assistant.
	UpsertAssistant(ctx context.Context, rec *domain.AssistantRecord) error

	// GetVectorStore retrieves a stored vector store by name.
	GetVectorStore(ctx context.Context, name string) (*domain.VectorStoreRecord, error)

	// UpsertVectorStore creates or replaces a stored vector store.
	UpsertVectorStore(ctx context.Context, rec *domain.VectorStoreRecord) error

	// PruneBefore removes sessions unused since cutoff along with their runs
	// and submissions. Returns the number of sessions removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
