package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"promptforge/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&ConversationModel{}, &TurnModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateConversation persists a conversation together with its turns.
func (s *GormStore) CreateConversation(conv domain.Conversation) error {
	model, err := conversationToModel(conv)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		for i, turn := range conv.Turns {
			turnModel, err := turnToModel(conv.ID, i, turn)
			if err != nil {
				return err
			}
			if err := tx.Create(&turnModel).Error; err != nil {
				return fmt.Errorf("create turn: %w", err)
			}
		}
		return nil
	})
}

// AppendTurn appends a turn and overwrites current files in one transaction.
func (s *GormStore) AppendTurn(conversationID, userID string, turn domain.ConversationTurn) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.First(&conv, "id = ? AND user_id = ?", conversationID, userID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrConversationNotFound
			}
			return fmt.Errorf("load conversation: %w", err)
		}
		var seq int64
		if err := tx.Model(&TurnModel{}).Where("conversation_id = ?", conversationID).Count(&seq).Error; err != nil {
			return fmt.Errorf("count turns: %w", err)
		}
		turnModel, err := turnToModel(conversationID, int(seq), turn)
		if err != nil {
			return err
		}
		if err := tx.Create(&turnModel).Error; err != nil {
			return fmt.Errorf("create turn: %w", err)
		}
		currentFiles, err := json.Marshal(turn.FullState)
		if err != nil {
			return fmt.Errorf("encode current files: %w", err)
		}
		if err := tx.Model(&ConversationModel{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"current_files": datatypes.JSON(currentFiles),
				"updated_at":    time.Now().UTC(),
			}).Error; err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
}

// GetConversation retrieves a conversation with all turns in order.
func (s *GormStore) GetConversation(conversationID, userID string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", conversationID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	var turnModels []TurnModel
	if err := s.db.Order("seq ASC").Find(&turnModels, "conversation_id = ?", conversationID).Error; err != nil {
		return domain.Conversation{}, false, err
	}
	conv, err := conversationFromModel(model, turnModels)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

// ListConversations returns a user's conversations, most recently updated
// first, including turns.
func (s *GormStore) ListConversations(userID string) ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.Order("updated_at DESC").Find(&models, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, model := range models {
		var turnModels []TurnModel
		if err := s.db.Order("seq ASC").Find(&turnModels, "conversation_id = ?", model.ID).Error; err != nil {
			return nil, err
		}
		conv, err := conversationFromModel(model, turnModels)
		if err != nil {
			return nil, err
		}
		res = append(res, conv)
	}
	return res, nil
}

func conversationToModel(conv domain.Conversation) (ConversationModel, error) {
	uploads, err := json.Marshal(conv.UploadedFiles)
	if err != nil {
		return ConversationModel{}, fmt.Errorf("encode uploads: %w", err)
	}
	currentFiles, err := json.Marshal(conv.CurrentFiles)
	if err != nil {
		return ConversationModel{}, fmt.Errorf("encode current files: %w", err)
	}
	return ConversationModel{
		ID:            conv.ID,
		UserID:        conv.UserID,
		InitialPrompt: conv.InitialPrompt,
		UploadedFiles: uploads,
		CurrentFiles:  currentFiles,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}, nil
}

func conversationFromModel(model ConversationModel, turnModels []TurnModel) (domain.Conversation, error) {
	conv := domain.Conversation{
		ID:            model.ID,
		UserID:        model.UserID,
		InitialPrompt: model.InitialPrompt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if len(model.UploadedFiles) > 0 {
		if err := json.Unmarshal(model.UploadedFiles, &conv.UploadedFiles); err != nil {
			return domain.Conversation{}, fmt.Errorf("decode uploads: %w", err)
		}
	}
	if len(model.CurrentFiles) > 0 {
		if err := json.Unmarshal(model.CurrentFiles, &conv.CurrentFiles); err != nil {
			return domain.Conversation{}, fmt.Errorf("decode current files: %w", err)
		}
	}
	conv.Turns = make([]domain.ConversationTurn, 0, len(turnModels))
	for _, turnModel := range turnModels {
		turn, err := turnFromModel(turnModel)
		if err != nil {
			return domain.Conversation{}, err
		}
		conv.Turns = append(conv.Turns, turn)
	}
	return conv, nil
}

func turnToModel(conversationID string, seq int, turn domain.ConversationTurn) (TurnModel, error) {
	changes, err := json.Marshal(turn.FileChanges)
	if err != nil {
		return TurnModel{}, fmt.Errorf("encode file changes: %w", err)
	}
	fullState, err := json.Marshal(turn.FullState)
	if err != nil {
		return TurnModel{}, fmt.Errorf("encode full state: %w", err)
	}
	return TurnModel{
		ID:             turn.ID,
		ConversationID: conversationID,
		Seq:            seq,
		Prompt:         turn.Prompt,
		FileChanges:    changes,
		FullState:      fullState,
		CreatedAt:      turn.CreatedAt,
	}, nil
}

func turnFromModel(model TurnModel) (domain.ConversationTurn, error) {
	turn := domain.ConversationTurn{
		ID:        model.ID,
		Prompt:    model.Prompt,
		CreatedAt: model.CreatedAt,
	}
	if len(model.FileChanges) > 0 {
		if err := json.Unmarshal(model.FileChanges, &turn.FileChanges); err != nil {
			return domain.ConversationTurn{}, fmt.Errorf("decode file changes: %w", err)
		}
	}
	if len(model.FullState) > 0 {
		if err := json.Unmarshal(model.FullState, &turn.FullState); err != nil {
			return domain.ConversationTurn{}, fmt.Errorf("decode full state: %w", err)
		}
	}
	return turn, nil
}
