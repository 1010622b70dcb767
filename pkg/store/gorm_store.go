package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"contractlens/pkg/domain"
)

const migrateLockID int64 = 52415241

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ContractModel{}, &CommentModel{}, &AnalysisModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveContract stores or updates a contract record.
func (s *GormStore) SaveContract(ctx context.Context, c domain.Contract) error {
	model := contractToModel(c)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "title", "original_filename", "storage_key", "status", "error_message", "size_bytes", "updated_at"}),
	}).Create(&model).Error
}

// SetContractStatus updates status/error.
func (s *GormStore) SetContractStatus(ctx context.Context, id string, status domain.ContractStatus, errMsg string) error {
	return s.db.WithContext(ctx).Model(&ContractModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetContractText stores the canonical text and marks the contract ready.
// The text column is written only while it is still empty, keeping the
// canonical text immutable once set.
func (s *GormStore) SetContractText(ctx context.Context, id string, text string) error {
	res := s.db.WithContext(ctx).Model(&ContractModel{}).
		Where("id = ? AND (text IS NULL OR text = '')", id).
		Updates(map[string]any{
			"text":          text,
			"text_len":      len([]rune(text)),
			"status":        string(domain.StatusReady),
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("contract %s missing or text already set", id)
	}
	return nil
}

// ListContracts returns all contracts ordered by created_at.
func (s *GormStore) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	return s.listContracts(ctx)
}

// ListContractsByOwner returns contracts filtered by owner.
func (s *GormStore) ListContractsByOwner(ctx context.Context, ownerID string) ([]domain.Contract, error) {
	return s.listContracts(ctx, "owner_id = ?", ownerID)
}

func (s *GormStore) listContracts(ctx context.Context, conds ...any) ([]domain.Contract, error) {
	var models []ContractModel
	tx := s.db.WithContext(ctx).Order("created_at ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contract, 0, len(models))
	for _, m := range models {
		res = append(res, contractFromModel(m))
	}
	return res, nil
}

// GetContract retrieves a contract.
func (s *GormStore) GetContract(ctx context.Context, id string) (domain.Contract, bool, error) {
	var model ContractModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Contract{}, false, nil
		}
		return domain.Contract{}, false, err
	}
	return contractFromModel(model), true, nil
}

// DeleteContract removes a contract together with its comments and analyses.
func (s *GormStore) DeleteContract(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", id).Delete(&CommentModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("contract_id = ?", id).Delete(&AnalysisModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ContractModel{}, "id = ?", id).Error
	})
}

// AppendComment inserts a comment, assigning its timestamp and letting the
// bigserial seq column break ties. The inserted row is read back so the
// caller gets the resolved record.
func (s *GormStore) AppendComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	model, err := commentToModel(c)
	if err != nil {
		return domain.Comment{}, err
	}
	model.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Comment{}, err
	}
	return commentFromModel(model)
}

// ListComments returns the ordered comment log for a contract.
func (s *GormStore) ListComments(ctx context.Context, contractID string) ([]domain.Comment, error) {
	var models []CommentModel
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Comment, 0, len(models))
	for _, m := range models {
		comment, err := commentFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, comment)
	}
	return res, nil
}

// SaveAnalysis records an AI analysis result.
func (s *GormStore) SaveAnalysis(ctx context.Context, a domain.Analysis) error {
	model := analysisToModel(a)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListAnalyses returns analyses for a contract, newest first.
func (s *GormStore) ListAnalyses(ctx context.Context, contractID string) ([]domain.Analysis, error) {
	var models []AnalysisModel
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Analysis, 0, len(models))
	for _, m := range models {
		res = append(res, analysisFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    updated,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func contractToModel(c domain.Contract) ContractModel {
	return ContractModel{
		ID:               c.ID,
		OwnerID:          c.OwnerID,
		Title:            c.Title,
		OriginalFilename: c.OriginalFilename,
		StorageKey:       c.StorageKey,
		Status:           string(c.Status),
		ErrorMessage:     c.ErrorMessage,
		SizeBytes:        c.SizeBytes,
		Text:             c.Text,
		TextLen:          c.TextLen,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func contractFromModel(m ContractModel) domain.Contract {
	return domain.Contract{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		Status:           domain.ContractStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		SizeBytes:        m.SizeBytes,
		Text:             m.Text,
		TextLen:          m.TextLen,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func commentToModel(c domain.Comment) (CommentModel, error) {
	model := CommentModel{
		ID:         c.ID,
		ContractID: c.ContractID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
	if c.Highlight != nil {
		raw, err := json.Marshal(c.Highlight)
		if err != nil {
			return CommentModel{}, fmt.Errorf("encode highlight: %w", err)
		}
		model.Highlight = datatypes.JSON(raw)
	}
	return model, nil
}

func commentFromModel(m CommentModel) (domain.Comment, error) {
	comment := domain.Comment{
		ID:         m.ID,
		ContractID: m.ContractID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Highlight) > 0 {
		var h domain.Highlight
		if err := json.Unmarshal(m.Highlight, &h); err != nil {
			return domain.Comment{}, fmt.Errorf("decode highlight: %w", err)
		}
		comment.Highlight = &h
	}
	return comment, nil
}

func analysisToModel(a domain.Analysis) AnalysisModel {
	return AnalysisModel{
		ID:         a.ID,
		ContractID: a.ContractID,
		Kind:       string(a.Kind),
		Prompt:     a.Prompt,
		Result:     a.Result,
		CreatedAt:  a.CreatedAt,
	}
}

func analysisFromModel(m AnalysisModel) domain.Analysis {
	return domain.Analysis{
		ID:         m.ID,
		ContractID: m.ContractID,
		Kind:       domain.AnalysisKind(m.Kind),
		Prompt:     m.Prompt,
		Result:     m.Result,
		CreatedAt:  m.CreatedAt,
	}
}
