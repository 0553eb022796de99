// Package repo implements the audit persistence layer, backed by GORM.
// This file provides repository functions for the AuditRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-credit-gate/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
//
// It aliases gorm.ErrRecordNotFound so callers can use errors.Is without
// importing gorm.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateAuditRecord inserts one stage-outcome record. A missing ID is
// minted and a zero CreatedAt is stamped with the current UTC time.
func CreateAuditRecord(ctx context.Context, db *gorm.DB, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// ListAuditByTransaction returns the full decision trail of one transaction,
// oldest record first.
func ListAuditByTransaction(ctx context.Context, db *gorm.DB, txID string) ([]domain.AuditRecord, error) {
	var recs []domain.AuditRecord
	err := db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}

// CountAuditByOutcome returns how many records carry the given outcome.
func CountAuditByOutcome(ctx context.Context, db *gorm.DB, outcome string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.AuditRecord{}).
		Where("outcome = ?", outcome).
		Count(&n).Error
	return n, err
}

// PurgeAuditBefore deletes records created before cutoff and returns how
// many rows were removed. Intended for retention jobs.
func PurgeAuditBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.AuditRecord{})
	return res.RowsAffected, res.Error
}
