package domain

import "time"

// AuditRecord is the persisted trace of one admission stage outcome. Every
// stage a transaction passes (or fails) leaves exactly one record, so the
// full decision history of a submission can be reconstructed by
// transaction id.
type AuditRecord struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	TransactionID string    `gorm:"type:varchar(64);not null;index:idx_audit_tx"`
	UserID        string    `gorm:"type:varchar(64);not null;index"`
	Stage         string    `gorm:"type:varchar(32);not null"`
	Outcome       string    `gorm:"type:varchar(16);not null;index"`
	Detail        string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (AuditRecord) TableName() string { return "audit_records" }
