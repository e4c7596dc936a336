package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"promptforge/pkg/ai"
	"promptforge/pkg/domain"
	"promptforge/pkg/store"
)

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) Generate(_ context.Context, _, _ string) (string, error) {
	return f.text, f.err
}

func (f *fakeLLM) GenerateStream(_ context.Context, _, _ string) <-chan ai.StreamChunk {
	ch := make(chan ai.StreamChunk, 8)
	go func() {
		defer close(ch)
		if f.err != nil {
			ch <- ai.StreamChunk{Err: f.err}
			return
		}
		// Split the canned response so progress arrives in pieces.
		text := f.text
		for len(text) > 0 {
			n := 7
			if n > len(text) {
				n = len(text)
			}
			ch <- ai.StreamChunk{Text: text[:n]}
			text = text[n:]
		}
		ch <- ai.StreamChunk{Done: true}
	}()
	return ch
}

type recordingSink struct {
	events []domain.StreamEvent
}

func (s *recordingSink) Emit(event domain.StreamEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(eventType string) []domain.StreamEvent {
	var out []domain.StreamEvent
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTestApp(t *testing.T, llm Generator) (*App, *store.MemoryStore, *[]time.Duration) {
	t.Helper()
	memory := store.NewMemoryStore()
	var slept []time.Duration
	a, err := New(Config{
		Store: memory,
		LLM:   llm,
		Sleep: func(d time.Duration) { slept = append(slept, d) },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memory, &slept
}

const projectResponse = "Here is your project:\n```json\n{\"/src/App.js\": \"export default 1\", \"/src/index.js\": \"render()\", \"/package.json\": \"{}\"}\n```"

func TestGenerateNewProject(t *testing.T) {
	a, memory, slept := newTestApp(t, &fakeLLM{text: projectResponse})
	sink := &recordingSink{}

	result, err := a.Generate(context.Background(), Request{Prompt: "todo app"}, sink)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.ConversationID == "" || result.UserID == "" {
		t.Fatalf("expected minted identifiers, got %+v", result)
	}
	if len(result.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(result.Files))
	}
	for _, change := range result.Changes {
		if change.Status != domain.ChangeNew {
			t.Fatalf("fresh generation produced status %q for %s", change.Status, change.Path)
		}
	}

	if sink.events[0].Type != domain.EventStatus {
		t.Fatalf("first event was %s, want status", sink.events[0].Type)
	}
	if sink.events[0].Iterative {
		t.Fatalf("fresh generation flagged iterative")
	}
	fileEvents := sink.ofType(domain.EventFile)
	if len(fileEvents) != 3 {
		t.Fatalf("expected 3 file events, got %d", len(fileEvents))
	}
	// Key order of the extracted object, not map order.
	wantOrder := []string{"/src/App.js", "/src/index.js", "/package.json"}
	for i, event := range fileEvents {
		if event.FileName != wantOrder[i] {
			t.Fatalf("file event %d was %s, want %s", i, event.FileName, wantOrder[i])
		}
		if event.ChangeType != domain.ChangeNew {
			t.Fatalf("file event %s had changeType %q", event.FileName, event.ChangeType)
		}
	}
	// Pacing applies between file events, not before the first.
	if len(*slept) != 2 {
		t.Fatalf("expected 2 pacing sleeps, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != defaultFilePacing {
			t.Fatalf("pacing sleep was %v, want %v", d, defaultFilePacing)
		}
	}

	completes := sink.ofType(domain.EventComplete)
	if len(completes) != 1 {
		t.Fatalf("expected exactly one complete event, got %d", len(completes))
	}
	if sink.events[len(sink.events)-1].Type != domain.EventComplete {
		t.Fatalf("complete was not the final event")
	}

	conv, ok, err := memory.GetConversation(result.ConversationID, result.UserID)
	if err != nil || !ok {
		t.Fatalf("persisted conversation missing: ok=%v err=%v", ok, err)
	}
	if conv.CurrentFiles["/src/App.js"] != "export default 1" {
		t.Fatalf("current files not persisted: %v", conv.CurrentFiles)
	}
}

func TestGenerateIterativeUpdate(t *testing.T) {
	response := "```json\n{\"/src/App.js\": \"v2\", \"/src/New.js\": \"fresh\"}\n```"
	a, memory, _ := newTestApp(t, &fakeLLM{text: response})

	seed := domain.Conversation{
		ID:            "conv-1",
		UserID:        "user-1",
		InitialPrompt: "original",
		Turns: []domain.ConversationTurn{{
			ID:        "turn-1",
			Prompt:    "original",
			FullState: domain.FileState{"/src/App.js": "v1", "/src/Old.js": "gone"},
			CreatedAt: time.Now().UTC(),
		}},
		CurrentFiles: domain.FileState{"/src/App.js": "v1", "/src/Old.js": "gone"},
	}
	if err := memory.CreateConversation(seed); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	sink := &recordingSink{}
	result, err := a.Generate(context.Background(), Request{
		Prompt:         "rename it",
		UserID:         "user-1",
		ConversationID: "conv-1",
		IsIterative:    true,
	}, sink)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.ConversationID != "conv-1" || !result.Iterative {
		t.Fatalf("unexpected result: %+v", result)
	}

	statuses := map[string]domain.ChangeStatus{}
	for _, change := range result.Changes {
		statuses[change.Path] = change.Status
	}
	if statuses["/src/App.js"] != domain.ChangeUpdated {
		t.Fatalf("App.js classified %q", statuses["/src/App.js"])
	}
	if statuses["/src/New.js"] != domain.ChangeNew {
		t.Fatalf("New.js classified %q", statuses["/src/New.js"])
	}
	if statuses["/src/Old.js"] != domain.ChangeDeleted {
		t.Fatalf("Old.js classified %q", statuses["/src/Old.js"])
	}

	// Deleted files never get a file event; they only appear in the change-set.
	for _, event := range sink.ofType(domain.EventFile) {
		if event.FileName == "/src/Old.js" {
			t.Fatalf("deleted file was emitted as a file event")
		}
	}

	conv, ok, err := memory.GetConversation("conv-1", "user-1")
	if err != nil || !ok {
		t.Fatalf("conversation lookup failed: ok=%v err=%v", ok, err)
	}
	if len(conv.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(conv.Turns))
	}
	if _, exists := conv.CurrentFiles["/src/Old.js"]; exists {
		t.Fatalf("deleted file survived in current files")
	}
}

func TestGenerateIterativeUnknownConversation(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeLLM{text: projectResponse})
	_, err := a.Generate(context.Background(), Request{
		Prompt:         "change it",
		UserID:         "user-1",
		ConversationID: "missing",
		IsIterative:    true,
	}, nil)
	if !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestGenerateEmptyRequest(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeLLM{text: projectResponse})
	_, err := a.Generate(context.Background(), Request{Prompt: "   "}, nil)
	if !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("expected ErrEmptyRequest, got %v", err)
	}
}

func TestGenerateTruncatedResponse(t *testing.T) {
	a, memory, _ := newTestApp(t, &fakeLLM{err: ai.ErrTruncated})
	sink := &recordingSink{}
	_, err := a.Generate(context.Background(), Request{Prompt: "huge app", UserID: "user-1"}, sink)
	if !errors.Is(err, ai.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if len(sink.ofType(domain.EventComplete)) != 0 {
		t.Fatalf("complete emitted despite truncation")
	}
	convs, err := memory.ListConversations("user-1")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("truncated generation was persisted")
	}
}

type failingStore struct {
	store.Store
}

func (f *failingStore) CreateConversation(domain.Conversation) error {
	return errors.New("disk full")
}

func TestGeneratePersistenceFailure(t *testing.T) {
	a, err := New(Config{
		Store: &failingStore{Store: store.NewMemoryStore()},
		LLM:   &fakeLLM{text: projectResponse},
		Sleep: func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	sink := &recordingSink{}
	_, err = a.Generate(context.Background(), Request{Prompt: "todo app"}, sink)
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	// Generated bytes without a durable turn must not look successful.
	if len(sink.ofType(domain.EventComplete)) != 0 {
		t.Fatalf("complete emitted despite persistence failure")
	}
	if len(sink.ofType(domain.EventFile)) != 0 {
		t.Fatalf("file events emitted despite persistence failure")
	}
}

func TestHistory(t *testing.T) {
	a, memory, _ := newTestApp(t, &fakeLLM{text: projectResponse})
	seed := domain.Conversation{
		ID:           "conv-1",
		UserID:       "user-1",
		CurrentFiles: domain.FileState{"/a.js": "x"},
	}
	if err := memory.CreateConversation(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	convs, err := a.History(context.Background(), "user-1", "")
	if err != nil || len(convs) != 1 {
		t.Fatalf("list history: %v (%d)", err, len(convs))
	}

	convs, err = a.History(context.Background(), "user-1", "conv-1")
	if err != nil || len(convs) != 1 || convs[0].ID != "conv-1" {
		t.Fatalf("single lookup failed: %v", err)
	}

	_, err = a.History(context.Background(), "other-user", "conv-1")
	if !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected not-found for foreign user, got %v", err)
	}
}

type fakeArchive struct {
	archived map[string][]domain.UploadedFile
}

func (f *fakeArchive) ArchiveUploads(_ context.Context, conversationID string, files []domain.UploadedFile) error {
	if f.archived == nil {
		f.archived = map[string][]domain.UploadedFile{}
	}
	f.archived[conversationID] = files
	return nil
}

func (f *fakeArchive) PresignUpload(_ context.Context, conversationID, uploadID string, _ time.Duration) (string, error) {
	return "https://archive.local/" + conversationID + "/" + uploadID, nil
}

func TestHistoryAttachesArchiveLinks(t *testing.T) {
	memory := store.NewMemoryStore()
	archive := &fakeArchive{}
	a, err := New(Config{
		Store:   memory,
		LLM:     &fakeLLM{text: projectResponse},
		Archive: archive,
		Sleep:   func(time.Duration) {},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	uploads := []domain.UploadedFile{{ID: "up-1", Name: "spec.txt", Type: "text/plain", Content: "notes"}}
	result, err := a.Generate(context.Background(), Request{
		Prompt:        "counter app",
		UserID:        "user-1",
		UploadedFiles: uploads,
	}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := archive.archived[result.ConversationID]; len(got) != 1 || got[0].ID != "up-1" {
		t.Fatalf("uploads not archived: %v", archive.archived)
	}

	convs, err := a.History(context.Background(), "user-1", result.ConversationID)
	if err != nil || len(convs) != 1 {
		t.Fatalf("history lookup: %v (%d)", err, len(convs))
	}
	wantURL := "https://archive.local/" + result.ConversationID + "/up-1"
	if got := convs[0].UploadedFiles[0].ArchiveURL; got != wantURL {
		t.Fatalf("archive link %q, want %q", got, wantURL)
	}

	// List lookups stay undecorated.
	convs, err = a.History(context.Background(), "user-1", "")
	if err != nil || len(convs) != 1 {
		t.Fatalf("history list: %v (%d)", err, len(convs))
	}
	if convs[0].UploadedFiles[0].ArchiveURL != "" {
		t.Fatalf("list lookup unexpectedly presigned uploads")
	}
}
