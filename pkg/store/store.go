package store

import (
	"errors"

	"promptforge/pkg/domain"
)

// ErrConversationNotFound indicates the conversation does not exist or
// belongs to a different user.
var ErrConversationNotFound = errors.New("conversation not found")

// Store defines persistence operations for conversations and their turns.
//
// AppendTurn must atomically append the turn and overwrite the
// conversation's current files with the turn's full state; after every
// append, CurrentFiles mirrors the full state of the most recent turn.
type Store interface {
	CreateConversation(conv domain.Conversation) error
	AppendTurn(conversationID, userID string, turn domain.ConversationTurn) error
	GetConversation(conversationID, userID string) (domain.Conversation, bool, error)
	ListConversations(userID string) ([]domain.Conversation, error)
}
