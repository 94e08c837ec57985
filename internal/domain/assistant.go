package domain

import (
	"time"
)

// AssistantRecord maps a local assistant definition to its remote id.
// Fingerprint changes whenever the definition does, forcing re-creation.
type AssistantRecord struct {
	Name        string
	Fingerprint string
	RemoteID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VectorStoreRecord maps a document index name to its remote id.
type VectorStoreRecord struct {
	Name      string
	RemoteID  string
	CreatedAt time.Time
}
