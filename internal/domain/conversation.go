// Package domain contains the core types shared by the formfill service.
package domain

import "time"

// Role identifies the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread is a remote-held ordered conversation.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Message is an immutable entry of a thread.
type Message struct {
	ID       string
	ThreadID string
	RunID    string
	Role     Role
	// Text holds the text blocks of the message in order. Non-text blocks are dropped.
	Text []string
}
