package storage

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
)

// AuditRepo persists audit entries in a local SQLite database.
type AuditRepo struct {
	db *gorm.DB
}

var _ ports.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo opens (or creates) the database file and migrates the audit
// schema.
func NewAuditRepo(path string) (*AuditRepo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&domain.AuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &AuditRepo{db: db}, nil
}

// SaveAuditEntry appends one action record.
func (r *AuditRepo) SaveAuditEntry(entry domain.AuditEntry) error {
	return r.db.Create(&entry).Error
}

// ListAuditEntries returns up to limit entries, newest first.
func (r *AuditRepo) ListAuditEntries(limit int) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := r.db.Order("timestamp desc").Limit(limit).Find(&entries).Error
	return entries, err
}

// Close releases the underlying connection pool.
func (r *AuditRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
