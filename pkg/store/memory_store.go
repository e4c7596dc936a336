package store

import (
	"sort"
	"sync"
	"time"

	"promptforge/pkg/domain"
)

// MemoryStore keeps conversations in-process. Used in tests and for local
// development without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]domain.Conversation)}
}

// CreateConversation stores a conversation record.
func (m *MemoryStore) CreateConversation(conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

// AppendTurn appends a turn and updates current files.
func (m *MemoryStore) AppendTurn(conversationID, userID string, turn domain.ConversationTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return ErrConversationNotFound
	}
	conv.Turns = append(conv.Turns, turn)
	conv.CurrentFiles = turn.FullState.Clone()
	conv.UpdatedAt = time.Now().UTC()
	m.conversations[conversationID] = conv
	return nil
}

// GetConversation retrieves a conversation owned by the user.
func (m *MemoryStore) GetConversation(conversationID, userID string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return domain.Conversation{}, false, nil
	}
	return cloneConversation(conv), true, nil
}

// ListConversations returns the user's conversations, most recently
// updated first.
func (m *MemoryStore) ListConversations(userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			res = append(res, cloneConversation(conv))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func cloneConversation(conv domain.Conversation) domain.Conversation {
	out := conv
	out.CurrentFiles = conv.CurrentFiles.Clone()
	out.Turns = make([]domain.ConversationTurn, len(conv.Turns))
	for i, turn := range conv.Turns {
		turn.FullState = turn.FullState.Clone()
		turn.FileChanges = append([]domain.FileChange(nil), turn.FileChanges...)
		out.Turns[i] = turn
	}
	out.UploadedFiles = append([]domain.UploadedFile(nil), conv.UploadedFiles...)
	return out
}
