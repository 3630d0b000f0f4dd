package audit

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
	"github.com/lcalzada-xor/lankill/internal/core/ports"
)

// DefaultListLimit caps audit queries that do not specify their own limit.
const DefaultListLimit = 200

// Service records operator actions. Persistence failures are logged and
// swallowed: an audit miss never blocks a kill or restore.
type Service struct {
	repo ports.AuditRepository
}

// NewService creates the audit service over a repository.
func NewService(repo ports.AuditRepository) *Service {
	return &Service{repo: repo}
}

// Record persists one action.
func (s *Service) Record(action, targetMAC, targetIP, detail string) {
	if s == nil || s.repo == nil {
		return
	}
	entry := domain.AuditEntry{
		ID:        uuid.New().String(),
		Action:    action,
		TargetMAC: targetMAC,
		TargetIP:  targetIP,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	if err := s.repo.SaveAuditEntry(entry); err != nil {
		log.Printf("[AUDIT] Failed to persist %s entry: %v", action, err)
	}
}

// List returns the most recent entries, newest first.
func (s *Service) List(limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.ListAuditEntries(limit)
}
