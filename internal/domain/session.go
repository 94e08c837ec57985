package domain

import (
	"time"
)

// SessionKind distinguishes the conversations the API creates.
type SessionKind string

const (
	// SessionKindHelper is a long-lived discussion thread created by /api/helpthread.
	SessionKindHelper SessionKind = "helper"
	// SessionKindForm is a single-request thread created by /api/formcall.
	SessionKindForm SessionKind = "form"
)

// Session binds one logical conversation to a remote thread and assistant.
type Session struct {
	ThreadID      string
	Kind          SessionKind
	AssistantName string
	CreatedAt     time.Time
	LastUsedAt    time.Time
}

// RunRecord is the audit entry written for every orchestrated run.
type RunRecord struct {
	RunID       string
	ThreadID    string
	AssistantID string
	Status      RunStatus
	Rounds      int
	ErrorKind   string
	Error       string
	CreatedAt   time.Time
}

// FormSubmission holds the form values the assistant passed to fill_forms.
type FormSubmission struct {
	ThreadID  string
	RunID     string
	Responses string
	CreatedAt time.Time
}
