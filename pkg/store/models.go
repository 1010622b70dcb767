package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ContractModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	OriginalFilename string `gorm:"not null"`
	StorageKey       string
	Status           string `gorm:"not null"`
	ErrorMessage     string
	SizeBytes        int64  `gorm:"not null"`
	Text             string `gorm:"type:text"`
	TextLen          int
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// CommentModel rows are only ever inserted. Seq is a bigserial that breaks
// created_at ties, giving the stable total order listings rely on.
type CommentModel struct {
	ID         string `gorm:"primaryKey"`
	ContractID string `gorm:"not null;index:idx_comments_contract_order,priority:1"`
	AuthorID   string `gorm:"not null"`
	AuthorName string `gorm:"not null"`
	Body       string `gorm:"type:text;not null"`
	Highlight  datatypes.JSON `gorm:"type:jsonb"`
	Seq        int64  `gorm:"autoIncrement;uniqueIndex"`
	CreatedAt  time.Time `gorm:"not null;index:idx_comments_contract_order,priority:2"`
}

type AnalysisModel struct {
	ID         string `gorm:"primaryKey"`
	ContractID string `gorm:"not null;index"`
	Kind       string `gorm:"not null"`
	Prompt     string `gorm:"type:text"`
	Result     string `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}
