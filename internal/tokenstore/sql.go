package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRecord is the row persisted by SQLStore.
type TokenRecord struct {
	StoreKey string `gorm:"primaryKey;size:100"`
	Token    string `gorm:"type:text;not null"`
	// Claims 令牌为 JWT 时保存未校验的 claims，便于运维排查；否则为空
	Claims    datatypes.JSONMap
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 表名
func (TokenRecord) TableName() string { return "session_tokens" }

// SQLStore keeps the token in a relational database through gorm.
type SQLStore struct {
	db  *gorm.DB
	key string
}

// NewSQLStore creates a SQLStore and migrates its table.
func NewSQLStore(db *gorm.DB, key string) (*SQLStore, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := db.AutoMigrate(&TokenRecord{}); err != nil {
		return nil, fmt.Errorf("迁移凭证表失败: %w", err)
	}
	return &SQLStore{db: db, key: key}, nil
}

func (s *SQLStore) Load(ctx context.Context) (string, error) {
	var rec TokenRecord
	err := s.db.WithContext(ctx).Where("store_key = ?", s.key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("查询凭证失败: %w", err)
	}
	return rec.Token, nil
}

func (s *SQLStore) Save(ctx context.Context, token string) error {
	rec := TokenRecord{StoreKey: s.key, Token: token, Claims: unverifiedClaims(token)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "claims", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("保存凭证失败: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("store_key = ?", s.key).Delete(&TokenRecord{}).Error; err != nil {
		return fmt.Errorf("删除凭证失败: %w", err)
	}
	return nil
}

func unverifiedClaims(token string) datatypes.JSONMap {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return datatypes.JSONMap(claims)
}
