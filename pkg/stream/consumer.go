// Package stream implements the client side of the generation protocol:
// consuming the server-sent event stream and animating the received files.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"promptforge/pkg/domain"
)

// GenerationError is a failure reported by the server over the stream.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string { return e.Message }

// Result is the authoritative outcome of one generation stream, taken from
// the complete event. Files becomes the baseline for the next iterative
// request.
type Result struct {
	ConversationID string
	UserID         string
	Files          domain.FileState
	Changes        []domain.FileChange
	Iterative      bool
}

// Handlers receive intermediate events while the stream is being consumed.
// Any handler may be nil.
type Handlers struct {
	OnStatus   func(message string, iterative bool)
	OnProgress func(delta string)
	OnFile     func(name, content string, change domain.ChangeStatus)
}

// Consume reads data frames from r until a complete or error event. File
// events are accumulated last-write-wins per name; the complete event's
// fullFiles replaces the working set. A malformed frame is logged and
// skipped, never fatal. Cancel ctx to abort; the caller owns r and must
// close the underlying connection to unblock a pending read.
func Consume(ctx context.Context, r io.Reader, h Handlers) (*Result, error) {
	working := domain.FileState{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var event domain.StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			slog.Warn("skipping malformed stream event", "err", err)
			continue
		}
		switch event.Type {
		case domain.EventStatus:
			if h.OnStatus != nil {
				h.OnStatus(event.Message, event.Iterative)
			}
		case domain.EventProgress:
			if h.OnProgress != nil {
				h.OnProgress(event.Delta)
			}
		case domain.EventFile:
			if event.FileName == "" {
				continue
			}
			working[event.FileName] = event.Content
			if h.OnFile != nil {
				change := event.ChangeType
				if change == "" {
					change = domain.ChangeNew
				}
				h.OnFile(event.FileName, event.Content, change)
			}
		case domain.EventComplete:
			files := event.FullFiles
			if files == nil {
				files = working
			}
			return &Result{
				ConversationID: event.ConversationID,
				UserID:         event.UserID,
				Files:          files,
				Changes:        event.ChangedFiles,
				Iterative:      event.Iterative,
			}, nil
		case domain.EventError:
			return nil, &GenerationError{Message: event.Error}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, &GenerationError{Message: "stream ended without a complete event"}
}

// Guidance maps a generation failure to a user-facing message. Known
// failure classes get specific remediation advice; anything else is
// wrapped generically.
func Guidance(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "max_tokens") || strings.Contains(lower, "truncated"):
		return "The generated project was too large to complete. Try simplifying your prompt or splitting it into smaller steps."
	case strings.Contains(lower, "529") || strings.Contains(lower, "overloaded"):
		return "The AI service is temporarily unavailable. Please try again in a few moments."
	default:
		return "Generation failed: " + msg
	}
}
