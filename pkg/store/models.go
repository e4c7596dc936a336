package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Snapshots and change-sets are stored
// as jsonb documents; turns live in their own table ordered by seq.
type ConversationModel struct {
	ID            string         `gorm:"primaryKey"`
	UserID        string         `gorm:"not null;index"`
	InitialPrompt string         `gorm:"type:text;not null"`
	UploadedFiles datatypes.JSON `gorm:"type:jsonb"`
	CurrentFiles  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null;index"`
}

type TurnModel struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"not null;index"`
	Seq            int            `gorm:"not null"`
	Prompt         string         `gorm:"type:text;not null"`
	FileChanges    datatypes.JSON `gorm:"type:jsonb"`
	FullState      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}
