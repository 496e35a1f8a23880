package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

// AuditOutboxRecord implements a transactional outbox for audit events: the
// record is written inside the caller's DB transaction but is NOT published.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
type AuditOutboxRecord struct {
	ID             int                `gorm:"primary_key" json:"id"`
	OrganizationId string             `gorm:"type:char(36);index;not null" json:"organization_id"`
	OccurredAt     time.Time          `gorm:"not null" json:"occurred_at"`
	ReferenceId    string             `gorm:"type:char(36);index;not null" json:"reference_id"`
	ReferenceType  AuditReferenceType `gorm:"size:50;not null" json:"reference_type"`
	Action         AuditAction        `gorm:"size:50;not null" json:"action"`
	ActorUserId    int                `json:"actor_user_id"`
	NewObj         []byte             `gorm:"type:mediumblob" json:"new_obj"`
	OldObj         []byte             `gorm:"type:mediumblob" json:"old_obj"`
	IsProcessed    bool               `gorm:"index;not null;default:false" json:"is_processed"`

	PublishStatus    OutboxPublishStatus `gorm:"size:20;index;not null;default:PENDING" json:"publish_status"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `json:"next_attempt_at"`
	LockedAt         *time.Time          `json:"locked_at"`
	LockedBy         *string             `gorm:"size:64" json:"locked_by"`
	LastPublishError *string             `gorm:"size:1024" json:"last_publish_error"`
	PublishedAt      *time.Time          `json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:64" json:"pub_sub_message_id"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordAuditEvent writes one audit outbox row inside the caller's DB
// transaction. Every mutation across the contract goes through here, which is
// what gives voided transactions and deactivated edges a complete trail.
func RecordAuditEvent(ctx context.Context, tx *gorm.DB, organizationId string, actorUserId int, refType AuditReferenceType, refId string, action AuditAction, newObj interface{}, oldObj interface{}) error {

	var newInByte []byte
	var oldInByte []byte
	var err error

	if newObj != nil {
		newInByte, err = json.Marshal(newObj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := AuditOutboxRecord{
		OrganizationId: organizationId,
		OccurredAt:     time.Now().UTC(),
		ReferenceId:    refId,
		ReferenceType:  refType,
		Action:         action,
		ActorUserId:    actorUserId,
		NewObj:         newInByte,
		OldObj:         oldInByte,
		IsProcessed:    false,
		PublishStatus:  OutboxPublishStatusPending,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

// ConvertToAuditMessage maps an outbox row to its wire form.
func ConvertToAuditMessage(rec AuditOutboxRecord) config.AuditMessage {
	return config.AuditMessage{
		ID:             rec.ID,
		OrganizationId: rec.OrganizationId,
		OccurredAt:     rec.OccurredAt,
		ReferenceId:    rec.ReferenceId,
		ReferenceType:  string(rec.ReferenceType),
		Action:         string(rec.Action),
		ActorUserId:    rec.ActorUserId,
		OldObj:         rec.OldObj,
		NewObj:         rec.NewObj,
		CorrelationId:  rec.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
