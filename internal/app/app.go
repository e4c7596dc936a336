// Package app wires the generation pipeline: prompt assembly, the model
// call, extraction, reconciliation, persistence, and event emission.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"promptforge/internal/util"
	"promptforge/pkg/ai"
	"promptforge/pkg/diff"
	"promptforge/pkg/domain"
	"promptforge/pkg/notify"
	"promptforge/pkg/storage"
	"promptforge/pkg/store"
)

const defaultFilePacing = 300 * time.Millisecond

// Generator produces project text from prompts. *ai.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string) <-chan ai.StreamChunk
}

// EventSink receives stream events as the pipeline progresses. A nil sink
// runs the pipeline without emission.
type EventSink interface {
	Emit(event domain.StreamEvent) error
}

// Config holds runtime configuration for the core application.
// LLM may be nil when no provider credential is configured; generation
// requests then fail with ErrMissingAPIKey while history stays available.
type Config struct {
	Store      store.Store
	LLM        Generator
	StateCache *store.StateCache     // optional snapshot cache
	Archive    storage.UploadArchive // optional raw upload archive
	Notifier   *notify.Notifier      // optional completion event publisher
	FilePacing time.Duration         // delay between file events, default 300ms
	Sleep      func(time.Duration)   // injectable for tests
}

// App is the core application service behind the HTTP handlers.
type App struct {
	store      store.Store
	llm        Generator
	cache      *store.StateCache
	archive    storage.UploadArchive
	notifier   *notify.Notifier
	filePacing time.Duration
	sleep      func(time.Duration)
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	pacing := cfg.FilePacing
	if pacing <= 0 {
		pacing = defaultFilePacing
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &App{
		store:      cfg.Store,
		llm:        cfg.LLM,
		cache:      cfg.StateCache,
		archive:    cfg.Archive,
		notifier:   cfg.Notifier,
		filePacing: pacing,
		sleep:      sleep,
	}, nil
}

// Request describes one generation request. ExistingFiles lets a client
// supply the previous snapshot directly when it has no stored conversation
// to resolve against.
type Request struct {
	Prompt         string
	UserID         string
	ConversationID string
	IsIterative    bool
	ExistingFiles  domain.FileState
	UploadedFiles  []domain.UploadedFile
}

// Result is the durable outcome of a generation.
type Result struct {
	ConversationID string
	UserID         string
	Files          domain.FileState
	Changes        []domain.FileChange
	Iterative      bool
}

// Generate runs the full pipeline for one request. Events are emitted to
// sink as the pipeline progresses; the returned Result reflects what was
// persisted. The caller is responsible for translating errors into an error
// event or HTTP status.
func (a *App) Generate(ctx context.Context, req Request, sink EventSink) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.UploadedFiles) == 0 {
		return nil, ErrEmptyRequest
	}
	if a.llm == nil {
		return nil, ErrMissingAPIKey
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}
	iterative := req.IsIterative
	resumeStored := iterative && req.ConversationID != ""

	previous := req.ExistingFiles
	var previousPrompts []string
	if resumeStored {
		conv, ok, err := a.store.GetConversation(req.ConversationID, userID)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		if !ok {
			return nil, store.ErrConversationNotFound
		}
		previous = conv.CurrentFiles
		if a.cache != nil {
			if cached, hit, err := a.cache.Get(ctx, req.ConversationID); err == nil && hit {
				previous = cached
			}
		}
		for _, turn := range conv.Turns {
			previousPrompts = append(previousPrompts, turn.Prompt)
		}
	}

	if err := a.emit(sink, domain.StreamEvent{
		Type:      domain.EventStatus,
		Message:   statusMessage(iterative),
		Iterative: iterative,
	}); err != nil {
		return nil, err
	}

	uploadContext := BuildUploadContext(req.UploadedFiles)
	userPrompt, err := a.buildPrompt(req.Prompt, iterative, previous, previousPrompts, uploadContext)
	if err != nil {
		return nil, err
	}

	raw, err := a.generateText(ctx, userPrompt, sink)
	if err != nil {
		return nil, err
	}

	files, order, err := ai.Extract(raw)
	if err != nil {
		return nil, fmt.Errorf("extract project: %w", err)
	}
	changes := diff.Changes(previous, files)

	now := time.Now().UTC()
	turn := domain.ConversationTurn{
		ID:          util.NewID(),
		Prompt:      req.Prompt,
		FileChanges: changes,
		FullState:   files,
		CreatedAt:   now,
	}
	conversationID := req.ConversationID
	if resumeStored {
		if err := a.store.AppendTurn(conversationID, userID, turn); err != nil {
			return nil, fmt.Errorf("append turn: %w", err)
		}
	} else {
		conversationID = uuid.NewString()
		conv := domain.Conversation{
			ID:            conversationID,
			UserID:        userID,
			InitialPrompt: req.Prompt,
			UploadedFiles: req.UploadedFiles,
			Turns:         []domain.ConversationTurn{turn},
			CurrentFiles:  files,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := a.store.CreateConversation(conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	}

	a.fanOutAfterPersist(ctx, conversationID, userID, turn, req.UploadedFiles, iterative)

	for i, path := range order {
		if i > 0 {
			a.sleep(a.filePacing)
		}
		event := domain.StreamEvent{
			Type:       domain.EventFile,
			FileName:   path,
			Content:    files[path],
			ChangeType: diff.StatusFor(changes, path),
		}
		if err := a.emit(sink, event); err != nil {
			return nil, err
		}
	}

	result := &Result{
		ConversationID: conversationID,
		UserID:         userID,
		Files:          files,
		Changes:        changes,
		Iterative:      iterative,
	}
	if err := a.emit(sink, domain.StreamEvent{
		Type:           domain.EventComplete,
		ConversationID: conversationID,
		UserID:         userID,
		FullFiles:      files,
		ChangedFiles:   changes,
		Iterative:      iterative,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

const archiveLinkExpiry = 15 * time.Minute

// History returns a user's conversations, or one conversation when
// conversationID is non-empty. Single-conversation lookups decorate the
// uploads with short-lived archive download links when an archive is
// configured; list lookups skip this to avoid presigning every upload of
// every conversation.
func (a *App) History(ctx context.Context, userID, conversationID string) ([]domain.Conversation, error) {
	if conversationID != "" {
		conv, ok, err := a.store.GetConversation(conversationID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.ErrConversationNotFound
		}
		a.attachArchiveLinks(ctx, &conv)
		return []domain.Conversation{conv}, nil
	}
	return a.store.ListConversations(userID)
}

// attachArchiveLinks fills in presigned download URLs for archived uploads.
// Best-effort: a presign failure leaves the upload without a link.
func (a *App) attachArchiveLinks(ctx context.Context, conv *domain.Conversation) {
	if a.archive == nil {
		return
	}
	for i, upload := range conv.UploadedFiles {
		url, err := a.archive.PresignUpload(ctx, conv.ID, upload.ID, archiveLinkExpiry)
		if err != nil {
			slog.Warn("presign archived upload failed", "conversation_id", conv.ID, "upload_id", upload.ID, "error", err)
			continue
		}
		conv.UploadedFiles[i].ArchiveURL = url
	}
}

func (a *App) buildPrompt(prompt string, iterative bool, previous domain.FileState, previousPrompts, uploadContext []string) (string, error) {
	if iterative {
		return ai.BuildIterativePrompt(prompt, previous, previousPrompts, uploadContext)
	}
	return ai.BuildPrompt(prompt, uploadContext), nil
}

// generateText calls the model. With a sink it streams and forwards raw
// deltas as progress events; without one it makes a blocking call.
func (a *App) generateText(ctx context.Context, userPrompt string, sink EventSink) (string, error) {
	if sink == nil {
		return a.llm.Generate(ctx, ai.SystemPrompt, userPrompt)
	}
	var sb strings.Builder
	for chunk := range a.llm.GenerateStream(ctx, ai.SystemPrompt, userPrompt) {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Done {
			break
		}
		if chunk.Text == "" {
			continue
		}
		sb.WriteString(chunk.Text)
		if err := a.emit(sink, domain.StreamEvent{Type: domain.EventProgress, Delta: chunk.Text}); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// fanOutAfterPersist runs best-effort side effects once the turn is durable.
// Failures here never fail the generation.
func (a *App) fanOutAfterPersist(ctx context.Context, conversationID, userID string, turn domain.ConversationTurn, uploads []domain.UploadedFile, iterative bool) {
	g, gctx := errgroup.WithContext(ctx)
	if a.cache != nil {
		g.Go(func() error { return a.cache.Put(gctx, conversationID, turn.FullState) })
	}
	if a.archive != nil && len(uploads) > 0 {
		g.Go(func() error { return a.archive.ArchiveUploads(gctx, conversationID, uploads) })
	}
	if a.notifier != nil {
		g.Go(func() error { return a.notifier.GenerationCompleted(gctx, conversationID, userID, turn, iterative) })
	}
	if err := g.Wait(); err != nil {
		slog.Warn("post-persist fan-out failed", "conversation_id", conversationID, "error", err)
	}
}

func (a *App) emit(sink EventSink, event domain.StreamEvent) error {
	if sink == nil {
		return nil
	}
	if err := sink.Emit(event); err != nil {
		return fmt.Errorf("emit %s event: %w", event.Type, err)
	}
	return nil
}

func statusMessage(iterative bool) string {
	if iterative {
		return "Updating your project..."
	}
	return "Generating your React project..."
}
