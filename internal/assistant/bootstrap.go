package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/tools"
)

// Resolved is a definition bound to its remote assistant id.
type Resolved struct {
	Definition
	ID string
}

// Bootstrapper makes sure the catalog's assistants exist remotely.
type Bootstrapper struct {
	registry        Registry
	store           Store
	vectorStoreName string
	logger          *slog.Logger
}

// NewBootstrapper creates a bootstrapper. vectorStoreName names the document
// index attached to newly created file-search assistants, if it exists.
func NewBootstrapper(registry Registry, store Store, vectorStoreName string, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		registry:        registry,
		store:           store,
		vectorStoreName: vectorStoreName,
		logger:          logger,
	}
}

// Ensure resolves every catalog entry, reusing stored ids whose fingerprint
// still matches and creating the rest.
func (b *Bootstrapper) Ensure(ctx context.Context, cat *Catalog, available []tools.Definition) (map[Role]Resolved, error) {
	out := make(map[Role]Resolved, len(cat.Assistants))
	for _, def := range cat.Assistants {
		resolved, err := b.ensureOne(ctx, def, available)
		if err != nil {
			return nil, err
		}
		out[def.Role] = resolved
	}
	return out, nil
}

func (b *Bootstrapper) ensureOne(ctx context.Context, def Definition, available []tools.Definition) (Resolved, error) {
	toolDefs, err := def.ToolDefinitions(available)
	if err != nil {
		return Resolved{}, err
	}
	fingerprint := def.Fingerprint(toolDefs)

	rec, err := b.store.GetAssistant(ctx, def.Name)
	if err != nil {
		return Resolved{}, fmt.Errorf("load assistant %q: %w", def.Name, err)
	}
	if rec != nil && rec.Fingerprint == fingerprint && rec.RemoteID != "" {
		b.logger.Info("Reusing assistant", "name", def.Name, "assistant_id", rec.RemoteID)
		return Resolved{Definition: def, ID: rec.RemoteID}, nil
	}

	id, err := b.registry.CreateAssistant(ctx, def, toolDefs)
	if err != nil {
		return Resolved{}, err
	}

	now := time.Now()
	newRec := &domain.AssistantRecord{
		Name:        def.Name,
		Fingerprint: fingerprint,
		RemoteID:    id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rec != nil {
		newRec.CreatedAt = rec.CreatedAt
	}
	if err := b.store.UpsertAssistant(ctx, newRec); err != nil {
		return Resolved{}, fmt.Errorf("save assistant %q: %w", def.Name, err)
	}

	if def.FileSearch {
		if err := b.attachExistingIndex(ctx, id); err != nil {
			return Resolved{}, err
		}
	}
	return Resolved{Definition: def, ID: id}, nil
}

func (b *Bootstrapper) attachExistingIndex(ctx context.Context, assistantID string) error {
	vs, err := b.store.GetVectorStore(ctx, b.vectorStoreName)
	if err != nil {
		return fmt.Errorf("load vector store %q: %w", b.vectorStoreName, err)
	}
	if vs == nil {
		return nil
	}
	if err := b.registry.AttachVectorStore(ctx, assistantID, vs.RemoteID); err != nil {
		return err
	}
	b.logger.Info("Vector store attached", "assistant_id", assistantID, "vector_store_id", vs.RemoteID)
	return nil
}

// IndexDocuments uploads files into the named vector store, creating it on
// first use, and attaches it to the assistant.
func IndexDocuments(ctx context.Context, idx Index, registry Registry, store Store, name, assistantID string, paths []string) (UploadResult, error) {
	rec, err := store.GetVectorStore(ctx, name)
	if err != nil {
		return UploadResult{}, fmt.Errorf("load vector store %q: %w", name, err)
	}
	if rec == nil {
		id, err := idx.CreateVectorStore(ctx, name)
		if err != nil {
			return UploadResult{}, err
		}
		rec = &domain.VectorStoreRecord{Name: name, RemoteID: id, CreatedAt: time.Now()}
		if err := store.UpsertVectorStore(ctx, rec); err != nil {
			return UploadResult{}, fmt.Errorf("save vector store %q: %w", name, err)
		}
	}

	result, err := idx.UploadFiles(ctx, rec.RemoteID, paths)
	if err != nil {
		return result, err
	}
	if err := registry.AttachVectorStore(ctx, assistantID, rec.RemoteID); err != nil {
		return result, err
	}
	return result, nil
}
