// Package assistant talks to the remote hosted assistant service.
package assistant

import (
	"context"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/tools"
)

// RunRequest starts a run of an assistant against a thread.
type RunRequest struct {
	AssistantID  string
	Instructions string // optional per-run override
}

// Client defines the thread and run operations the orchestrator drives.
// This interface is implemented by the OpenAI client.
type Client interface {
	// CreateThread creates an empty conversation thread.
	CreateThread(ctx context.Context) (domain.Thread, error)

	// CreateMessage appends a message to a thread.
	CreateMessage(ctx context.Context, threadID string, role domain.Role, content string) (domain.Message, error)

	// CreateRun starts a run. The returned run is usually queued.
	CreateRun(ctx context.Context, threadID string, req RunRequest) (domain.Run, error)

	// RetrieveRun fetches the current state of a run.
	RetrieveRun(ctx context.Context, threadID, runID string) (domain.Run, error)

	// SubmitToolOutputs answers the pending tool calls of a run in one batch.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error)

	// ListMessages returns up to limit messages, newest first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
}

// Registry creates assistant definitions on the remote service.
type Registry interface {
	// CreateAssistant creates an assistant offering the given tools and returns its id.
	CreateAssistant(ctx context.Context, def Definition, toolDefs []tools.Definition) (string, error)

	// AttachVectorStore makes a document index searchable by an assistant.
	AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) error
}

// UploadResult summarizes a document upload.
type UploadResult struct {
	FileIDs   []string
	Completed int
	Failed    int
}

// Index is the remote document index used for retrieval.
type Index interface {
	// CreateVectorStore creates an empty index and returns its id.
	CreateVectorStore(ctx context.Context, name string) (string, error)

	// UploadFiles uploads local files and waits until the index has processed them.
	UploadFiles(ctx context.Context, vectorStoreID string, paths []string) (UploadResult, error)
}

// Store persists the remote ids this package creates.
type Store interface {
	GetAssistant(ctx context.Context, name string) (*domain.AssistantRecord, error)
	UpsertAssistant(ctx context.Context, rec *domain.AssistantRecord) error
	GetVectorStore(ctx context.Context, name string) (*domain.VectorStoreRecord, error)
	UpsertVectorStore(ctx context.Context, rec *domain.VectorStoreRecord) error
}

// Ensure OpenAIClient implements the remote interfaces.
var (
	_ Client   = (*OpenAIClient)(nil)
	_ Registry = (*OpenAIClient)(nil)
	_ Index    = (*OpenAIClient)(nil)
)
