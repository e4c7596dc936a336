package domain

import "time"

// FileState is one complete snapshot of a generated project: a mapping from
// relative file path to file content. Paths are non-empty and contents are
// always text.
type FileState map[string]string

// Clone returns a deep copy of the snapshot.
func (fs FileState) Clone() FileState {
	if fs == nil {
		return nil
	}
	out := make(FileState, len(fs))
	for path, content := range fs {
		out[path] = content
	}
	return out
}

// ChangeStatus classifies a file relative to the previous snapshot.
type ChangeStatus string

const (
	ChangeNew     ChangeStatus = "new"
	ChangeUpdated ChangeStatus = "updated"
	ChangeDeleted ChangeStatus = "deleted"
)

// FileChange records one file that differs between two snapshots.
// PreviousContent is set only for updated and deleted files.
type FileChange struct {
	Path            string       `json:"path"`
	Status          ChangeStatus `json:"status"`
	PreviousContent string       `json:"previousContent,omitempty"`
}

// ConversationTurn is one prompt/response cycle: the prompt, the change-set
// it produced, and the full resulting snapshot. Turns are immutable once
// persisted.
type ConversationTurn struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	FileChanges []FileChange `json:"fileChanges"`
	FullState   FileState    `json:"fullState"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// UploadedFile is read-only input context attached to a conversation's first
// turn. Content is either plain text or a data-URL string. ArchiveURL is a
// short-lived download link for the archived original, filled in on read
// when an upload archive is configured; it is never persisted.
type UploadedFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         int64  `json:"size"`
	Content      string `json:"content"`
	LastModified int64  `json:"lastModified"`
	ArchiveURL   string `json:"archiveUrl,omitempty"`
}

// Conversation owns an ordered list of turns for one user. CurrentFiles
// always equals the FullState of the most recently appended turn.
type Conversation struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	InitialPrompt string             `json:"initialPrompt"`
	UploadedFiles []UploadedFile     `json:"uploadedFiles,omitempty"`
	Turns         []ConversationTurn `json:"conversationTurns"`
	CurrentFiles  FileState          `json:"currentFiles"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Stream event types carried over one SSE connection. Wire-level only,
// never persisted.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventFile     = "file"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent is one frame of the outward-facing generation stream.
type StreamEvent struct {
	Type string `json:"type"`

	// status
	Message   string `json:"message,omitempty"`
	Iterative bool   `json:"isIterativeUpdate,omitempty"`

	// progress
	Delta string `json:"delta,omitempty"`

	// file
	FileName   string       `json:"fileName,omitempty"`
	Content    string       `json:"content,omitempty"`
	ChangeType ChangeStatus `json:"changeType,omitempty"`

	// complete
	ConversationID string       `json:"conversationId,omitempty"`
	UserID         string       `json:"userId,omitempty"`
	FullFiles      FileState    `json:"fullFiles,omitempty"`
	ChangedFiles   []FileChange `json:"changedFiles,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}
