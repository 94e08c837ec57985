package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/tools"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oshared "github.com/openai/openai-go/shared"
)

const (
	defaultFilePollInterval = time.Second
	defaultFilePollTimeout  = 5 * time.Minute
)

var errMissingAPIKey = errors.New("missing openai api key")

// OpenAIClient implements Client, Registry and Index on the OpenAI Assistants API.
type OpenAIClient struct {
	client           openai.Client
	logger           *slog.Logger
	filePollInterval time.Duration
	filePollTimeout  time.Duration
}

// NewOpenAIClient creates a client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errMissingAPIKey
	}

	opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}

	return &OpenAIClient{
		client:           openai.NewClient(opts...),
		logger:           logger,
		filePollInterval: defaultFilePollInterval,
		filePollTimeout:  defaultFilePollTimeout,
	}, nil
}

// CreateThread creates an empty thread.
func (c *OpenAIClient) CreateThread(ctx context.Context) (domain.Thread, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return domain.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return domain.Thread{ID: thread.ID, CreatedAt: time.Unix(thread.CreatedAt, 0)}, nil
}

// CreateMessage appends a text message to a thread.
func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID string, role domain.Role, content string) (domain.Message, error) {
	msg, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role:    openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(content)},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message in thread %s: %w", threadID, err)
	}
	return toMessage(*msg), nil
}

// CreateRun starts a run.
func (c *OpenAIClient) CreateRun(ctx context.Context, threadID string, req RunRequest) (domain.Run, error) {
	params := openai.BetaThreadRunNewParams{AssistantID: req.AssistantID}
	if strings.TrimSpace(req.Instructions) != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return domain.Run{}, fmt.Errorf("create run in thread %s: %w", threadID, err)
	}
	return toRun(*run), nil
}

// RetrieveRun fetches a run.
func (c *OpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return domain.Run{}, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	return toRun(*run), nil
}

// SubmitToolOutputs submits one batch of tool outputs.
func (c *OpenAIClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, out := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(out.ToolCallID),
			Output:     openai.String(out.Output),
		})
	}
	run, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Warn("tool output submission rejected", "run_id", runID, "status_code", apiErr.StatusCode)
		}
		return domain.Run{}, fmt.Errorf("submit tool outputs for run %s: %w", runID, err)
	}
	return toRun(*run), nil
}

// ListMessages returns the newest messages of a thread first.
func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	params := openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	}
	if limit > 0 {
		params.Limit = openai.Int(int64(limit))
	}
	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, fmt.Errorf("list messages in thread %s: %w", threadID, err)
	}
	out := make([]domain.Message, 0, len(page.Data))
	for _, msg := range page.Data {
		out = append(out, toMessage(msg))
	}
	return out, nil
}

// CreateAssistant creates an assistant from a definition.
func (c *OpenAIClient) CreateAssistant(ctx context.Context, def Definition, toolDefs []tools.Definition) (string, error) {
	params := openai.BetaAssistantNewParams{
		Model:        oshared.ChatModel(def.Model),
		Name:         openai.String(def.Name),
		Instructions: openai.String(def.Instructions),
	}
	if def.FileSearch {
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{
			OfFileSearch: &openai.FileSearchToolParam{},
		})
	}
	for _, td := range toolDefs {
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: oshared.FunctionDefinitionParam{
					Name:        td.Name,
					Description: openai.String(td.Description),
					Parameters:  oshared.FunctionParameters(td.Parameters),
				},
			},
		})
	}

	created, err := c.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create assistant %q: %w", def.Name, err)
	}
	c.logger.Info("Assistant created", "name", def.Name, "assistant_id", created.ID, "tools", len(params.Tools))
	return created.ID, nil
}

// AttachVectorStore enables file search over a vector store for an assistant.
func (c *OpenAIClient) AttachVectorStore(ctx context.Context, assistantID, vectorStoreID string) error {
	_, err := c.client.Beta.Assistants.Update(ctx, assistantID, openai.BetaAssistantUpdateParams{
		ToolResources: openai.BetaAssistantUpdateParamsToolResources{
			FileSearch: openai.BetaAssistantUpdateParamsToolResourcesFileSearch{
				VectorStoreIDs: []string{vectorStoreID},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("attach vector store %s to assistant %s: %w", vectorStoreID, assistantID, err)
	}
	return nil
}

// CreateVectorStore creates a named vector store.
func (c *OpenAIClient) CreateVectorStore(ctx context.Context, name string) (string, error) {
	vs, err := c.client.VectorStores.New(ctx, openai.VectorStoreNewParams{Name: openai.String(name)})
	if err != nil {
		return "", fmt.Errorf("create vector store %q: %w", name, err)
	}
	return vs.ID, nil
}

// UploadFiles uploads each file, adds it to the vector store and waits for indexing.
// A file that fails to index is counted, not returned as an error.
func (c *OpenAIClient) UploadFiles(ctx context.Context, vectorStoreID string, paths []string) (UploadResult, error) {
	var result UploadResult
	for _, path := range paths {
		fileID, err := c.uploadFile(ctx, path)
		if err != nil {
			return result, err
		}
		result.FileIDs = append(result.FileIDs, fileID)

		if _, err := c.client.VectorStores.Files.New(ctx, vectorStoreID, openai.VectorStoreFileNewParams{FileID: fileID}); err != nil {
			return result, fmt.Errorf("add file %s to vector store %s: %w", fileID, vectorStoreID, err)
		}

		status, err := c.waitForFile(ctx, vectorStoreID, fileID)
		if err != nil {
			return result, err
		}
		if status == openai.VectorStoreFileStatusCompleted {
			result.Completed++
		} else {
			result.Failed++
			c.logger.Warn("file indexing did not complete", "file", filepath.Base(path), "file_id", fileID, "status", status)
		}
	}
	return result, nil
}

func (c *OpenAIClient) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			c.logger.Warn("failed to close upload file", "path", path, "error", closeErr)
		}
	}()

	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return file.ID, nil
}

func (c *OpenAIClient) waitForFile(ctx context.Context, vectorStoreID, fileID string) (openai.VectorStoreFileStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.filePollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.filePollInterval)
	defer ticker.Stop()
	for {
		vf, err := c.client.VectorStores.Files.Get(ctx, vectorStoreID, fileID)
		if err != nil {
			return "", fmt.Errorf("poll vector store file %s: %w", fileID, err)
		}
		if vf.Status != openai.VectorStoreFileStatusInProgress {
			return vf.Status, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("poll vector store file %s: %w", fileID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func toRun(run openai.Run) domain.Run {
	out := domain.Run{
		ID:          run.ID,
		ThreadID:    run.ThreadID,
		AssistantID: run.AssistantID,
		Status:      domain.RunStatus(run.Status),
		LastError:   run.LastError.Message,
	}
	if run.Status == openai.RunStatusRequiresAction {
		for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out
}

func toMessage(msg openai.Message) domain.Message {
	out := domain.Message{
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
		RunID:    msg.RunID,
		Role:     domain.Role(msg.Role),
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.Text = append(out.Text, block.Text.Value)
		}
	}
	return out
}
