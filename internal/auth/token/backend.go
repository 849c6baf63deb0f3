package token

import (
	"context"
	"errors"
	"sync"

	"github.com/pysugar/pulse-dashboard/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend is durable storage for the pair. SetPair must write both keys
// or neither.
type Backend interface {
	Get(ctx context.Context) (access, refresh string, err error)
	SetPair(ctx context.Context, access, refresh string) error
	Delete(ctx context.Context) error
}

// DBBackend stores the pair in the configs key/value table.
type DBBackend struct {
	db *gorm.DB
}

// NewDBBackend uses db, which must have models.Config migrated.
func NewDBBackend(db *gorm.DB) *DBBackend {
	return &DBBackend{db: db}
}

func (b *DBBackend) Get(ctx context.Context) (string, string, error) {
	var rows []models.Config
	err := b.db.WithContext(ctx).
		Where("key IN ?", []string{AccessTokenKey, RefreshTokenKey}).
		Find(&rows).Error
	if err != nil {
		return "", "", err
	}

	var access, refresh string
	for _, row := range rows {
		switch row.Key {
		case AccessTokenKey:
			access = row.Value
		case RefreshTokenKey:
			refresh = row.Value
		}
	}
	return access, refresh, nil
}

func (b *DBBackend) SetPair(ctx context.Context, access, refresh string) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows := []models.Config{
			{Key: AccessTokenKey, Value: access},
			{Key: RefreshTokenKey, Value: refresh},
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
}

func (b *DBBackend) Delete(ctx context.Context) error {
	return b.db.WithContext(ctx).
		Where("key IN ?", []string{AccessTokenKey, RefreshTokenKey}).
		Delete(&models.Config{}).Error
}

// MemoryBackend keeps the pair in process memory. Selected with the memory
// token backend and in tests.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (b *MemoryBackend) Get(_ context.Context) (string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values[AccessTokenKey], b.values[RefreshTokenKey], nil
}

func (b *MemoryBackend) SetPair(_ context.Context, access, refresh string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[AccessTokenKey] = access
	b.values[RefreshTokenKey] = refresh
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, AccessTokenKey)
	delete(b.values, RefreshTokenKey)
	return nil
}

var errNoRedis = errors.New("redis client is nil")
