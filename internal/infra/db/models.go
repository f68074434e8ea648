package db

import "time"

type SignAuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	Seq           int64  `gorm:"not null;uniqueIndex"`
	Backend       string `gorm:"not null"`
	KeyID         string `gorm:"column:key_id;not null"`
	Curve         string `gorm:"not null"`
	PrincipalHash *string
	PayloadHash   string `gorm:"not null"`
	SignatureHash *string
	Result        string `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (SignAuditEventModel) TableName() string {
	return "sign_audit_events"
}
