package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/smartcode"
	"github.com/heraerp/universal_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a business event header. Transactions are never physically
// deleted: VOID stamps reason, actor and timestamp and the lines stay intact.
type Transaction struct {
	ID                uuid.UUID         `gorm:"type:char(36);primary_key" json:"id"`
	OrganizationId    string            `gorm:"type:char(36);uniqueIndex:idx_txn_org_idem;index;not null" json:"organization_id"`
	SequenceNo        int64             `gorm:"not null" json:"sequence_no"`
	TransactionType   string            `gorm:"size:100;not null;index" json:"transaction_type"`
	TransactionCode   string            `gorm:"size:100;not null" json:"transaction_code"`
	TransactionDate   time.Time         `gorm:"index" json:"transaction_date"`
	SourceEntityId    *string           `gorm:"type:char(36);index" json:"source_entity_id"`
	TargetEntityId    *string           `gorm:"type:char(36);index" json:"target_entity_id"`
	TotalAmount       decimal.Decimal   `gorm:"type:decimal(20,6);not null" json:"total_amount"`
	TransactionStatus TransactionStatus `gorm:"size:30;not null;default:'CREATED';index" json:"transaction_status"`
	SmartCode         string            `gorm:"size:255;not null;index" json:"smart_code"`
	Metadata          JSONMap           `gorm:"type:json" json:"metadata"`
	IdempotencyKey    *string           `gorm:"size:100;uniqueIndex:idx_txn_org_idem" json:"idempotency_key"`
	VoidReason        *string           `gorm:"size:500" json:"void_reason"`
	VoidedBy          *int              `json:"voided_by"`
	VoidedAt          *time.Time        `json:"voided_at"`
	CreatedBy         int               `json:"created_by"`
	UpdatedBy         int               `json:"updated_by"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Lines []TransactionLine `gorm:"foreignKey:TransactionId" json:"lines,omitempty"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type TransactionLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TransactionId  uuid.UUID       `gorm:"type:char(36);index;not null" json:"transaction_id"`
	OrganizationId string          `gorm:"type:char(36);index;not null" json:"organization_id"`
	LineNumber     int             `gorm:"not null" json:"line_number"`
	LineType       LineType        `gorm:"size:30;not null" json:"line_type"`
	EntityId       *string         `gorm:"type:char(36);index" json:"entity_id"`
	Description    string          `gorm:"size:500" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,6)" json:"quantity"`
	UnitAmount     decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_amount"`
	LineAmount     decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"line_amount"`
	SmartCode      string          `gorm:"size:255;not null" json:"smart_code"`
	LineData       JSONMap         `gorm:"type:json" json:"line_data"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransactionLine struct {
	LineType    LineType        `json:"line_type" binding:"required"`
	EntityId    *string         `json:"entity_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	LineAmount  decimal.Decimal `json:"line_amount"`
	SmartCode   string          `json:"smart_code" binding:"required"`
	LineData    JSONMap         `json:"line_data"`
}

type NewTransaction struct {
	TransactionType string               `json:"transaction_type" binding:"required"`
	TransactionCode *string              `json:"transaction_code"`
	TransactionDate *time.Time           `json:"transaction_date"`
	SourceEntityId  *string              `json:"source_entity_id"`
	TargetEntityId  *string              `json:"target_entity_id"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	SmartCode       string               `json:"smart_code" binding:"required"`
	Metadata        JSONMap              `json:"metadata"`
	IdempotencyKey  *string              `json:"idempotency_key"`
	Lines           []*NewTransactionLine `json:"lines"`
}

// TransactionFilter holds the QUERY operation's filter set.
type TransactionFilter struct {
	TransactionTypes []string   `json:"transaction_types"`
	SmartCodes       []string   `json:"smart_codes"`
	SourceEntityId   *string    `json:"source_entity_id"`
	TargetEntityId   *string    `json:"target_entity_id"`
	DateFrom         *time.Time `json:"date_from"`
	DateTo           *time.Time `json:"date_to"`
	IncludeDeleted   bool       `json:"include_deleted"`
	Limit            int        `json:"limit"`
	Offset           int        `json:"offset"`
}

func (input *NewTransaction) validate(ctx context.Context, organizationId string) error {
	if input.TransactionType == "" {
		return NewApiError(ErrCodeValidation, "transaction_type is required")
	}
	if !smartcode.Validate(input.SmartCode) {
		return NewApiError(ErrCodeInvalidSmartCode, "invalid smart code on header: "+input.SmartCode)
	}
	if len(input.Lines) == 0 {
		return NewApiError(ErrCodeValidation, "a transaction requires at least one line")
	}
	for i, line := range input.Lines {
		if line == nil {
			return NewApiError(ErrCodeValidation, fmt.Sprintf("line %d is empty", i+1))
		}
		if !smartcode.Validate(line.SmartCode) {
			return NewApiError(ErrCodeInvalidSmartCode, fmt.Sprintf("invalid smart code on line %d: %s", i+1, line.SmartCode))
		}
		if line.EntityId != nil {
			if err := utils.ValidateResourceId[Entity](ctx, organizationId, *line.EntityId); err != nil {
				return NewApiError(ErrCodeEntityNotFound, fmt.Sprintf("line %d references an unknown entity", i+1))
			}
		}
	}
	if input.SourceEntityId != nil {
		if err := utils.ValidateResourceId[Entity](ctx, organizationId, *input.SourceEntityId); err != nil {
			return NewApiError(ErrCodeEntityNotFound, "source entity not found")
		}
	}
	if input.TargetEntityId != nil {
		if err := utils.ValidateResourceId[Entity](ctx, organizationId, *input.TargetEntityId); err != nil {
			return NewApiError(ErrCodeEntityNotFound, "target entity not found")
		}
	}
	return checkTransactionBalance(input.TransactionType, input.TotalAmount, input.Lines)
}

func findTransactionByIdempotencyKey(ctx context.Context, organizationId string, key string) (*Transaction, error) {
	var txn Transaction
	err := tenantDB(ctx, organizationId).
		Where("idempotency_key = ?", key).
		Preload("Lines").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateTransaction persists a header and its lines atomically. Validation,
// smart-code governance and the balance rule all run before anything is
// written. With an idempotency key the call is at-most-once per organization:
// a retry that collides on (organization_id, idempotency_key) returns the
// originally created transaction.
func CreateTransaction(ctx context.Context, organizationId string, actorUserId int, input *NewTransaction) (*Transaction, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, organizationId); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		if existing, err := findTransactionByIdempotencyKey(ctx, organizationId, *input.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	seq, err := utils.GetSequence[Transaction](ctx, organizationId)
	if err != nil {
		return nil, AsApiError(err)
	}
	code := fmt.Sprintf("TXN-%06d", seq)
	if input.TransactionCode != nil && *input.TransactionCode != "" {
		code = *input.TransactionCode
	}
	txnDate := time.Now().UTC()
	if input.TransactionDate != nil {
		txnDate = *input.TransactionDate
	}

	txn := Transaction{
		OrganizationId:    organizationId,
		SequenceNo:        seq,
		TransactionType:   input.TransactionType,
		TransactionCode:   code,
		TransactionDate:   txnDate,
		SourceEntityId:    input.SourceEntityId,
		TargetEntityId:    input.TargetEntityId,
		TotalAmount:       input.TotalAmount,
		TransactionStatus: TransactionStatusCreated,
		SmartCode:         input.SmartCode,
		Metadata:          input.Metadata,
		IdempotencyKey:    input.IdempotencyKey,
		CreatedBy:         actorUserId,
		UpdatedBy:         actorUserId,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&txn).Error; err != nil {
		tx.Rollback()
		// A concurrent retry can win the unique index race; hand back the
		// winner's row instead of a CONFLICT.
		if isDuplicateKeyErr(err) && input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
			if existing, fetchErr := findTransactionByIdempotencyKey(ctx, organizationId, *input.IdempotencyKey); fetchErr == nil {
				return existing, nil
			}
		}
		return nil, AsApiError(err)
	}
	for i, line := range input.Lines {
		row := TransactionLine{
			TransactionId:  txn.ID,
			OrganizationId: organizationId,
			LineNumber:     i + 1,
			LineType:       line.LineType,
			EntityId:       line.EntityId,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitAmount:     line.UnitAmount,
			LineAmount:     line.LineAmount,
			SmartCode:      line.SmartCode,
			LineData:       line.LineData,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			tx.Rollback()
			return nil, AsApiError(err)
		}
		txn.Lines = append(txn.Lines, row)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeTransaction, txn.ID.String(), AuditActionCreate, txn, nil); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return &txn, nil
}

// GetTransaction reads one transaction with its lines. Voided transactions
// are hidden unless includeDeleted puts the caller in audit view.
func GetTransaction(ctx context.Context, organizationId string, actorUserId int, transactionId string, includeDeleted bool) (*Transaction, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	dbCtx := tenantDB(ctx, organizationId).Preload("Lines")
	if !includeDeleted {
		dbCtx = dbCtx.Where("transaction_status <> ?", TransactionStatusVoided)
	}
	var txn Transaction
	if err := dbCtx.Where("id = ?", transactionId).First(&txn).Error; err != nil {
		return nil, NewApiError(ErrCodeTransactionNotFound, "transaction not found")
	}
	return &txn, nil
}

// QueryTransactions lists headers by filter with limit/offset pagination.
// Lines are not loaded on list reads.
func QueryTransactions(ctx context.Context, organizationId string, actorUserId int, filter TransactionFilter) ([]*Transaction, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	dbCtx := tenantDB(ctx, organizationId)
	if len(filter.TransactionTypes) > 0 {
		dbCtx = dbCtx.Where("transaction_type IN ?", filter.TransactionTypes)
	}
	if len(filter.SmartCodes) > 0 {
		dbCtx = dbCtx.Where("smart_code IN ?", filter.SmartCodes)
	}
	if filter.SourceEntityId != nil && *filter.SourceEntityId != "" {
		dbCtx = dbCtx.Where("source_entity_id = ?", *filter.SourceEntityId)
	}
	if filter.TargetEntityId != nil && *filter.TargetEntityId != "" {
		dbCtx = dbCtx.Where("target_entity_id = ?", *filter.TargetEntityId)
	}
	if filter.DateFrom != nil {
		dbCtx = dbCtx.Where("transaction_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		dbCtx = dbCtx.Where("transaction_date <= ?", *filter.DateTo)
	}
	if !filter.IncludeDeleted {
		dbCtx = dbCtx.Where("transaction_status <> ?", TransactionStatusVoided)
	}

	limit := filter.Limit
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}

	var txns []*Transaction
	if err := dbCtx.Order("transaction_date DESC, sequence_no DESC").Limit(limit).Offset(filter.Offset).Find(&txns).Error; err != nil {
		return nil, AsApiError(err)
	}
	return txns, nil
}

// CompleteTransaction advances a CREATED transaction to COMPLETED.
func CompleteTransaction(ctx context.Context, organizationId string, actorUserId int, transactionId string) (*Transaction, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	txn, err := utils.FetchModel[Transaction](ctx, organizationId, transactionId, "Lines")
	if err != nil {
		return nil, NewApiError(ErrCodeTransactionNotFound, "transaction not found")
	}
	if !CanTransitionTransactionStatus(txn.TransactionStatus, TransactionStatusCompleted) {
		return nil, NewApiError(ErrCodeGovernance,
			"cannot complete a transaction in status "+string(txn.TransactionStatus))
	}
	oldTxn := *txn

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(txn).Updates(map[string]interface{}{
		"transaction_status": TransactionStatusCompleted,
		"updated_by":         actorUserId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeTransaction, transactionId, AuditActionUpdate, txn, oldTxn); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return txn, nil
}

// VoidTransaction moves a transaction to its terminal VOIDED state, stamping
// reason, actor and timestamp. Lines stay untouched. Voiding an already
// voided transaction returns it unchanged.
func VoidTransaction(ctx context.Context, organizationId string, actorUserId int, transactionId string, reason string) (*Transaction, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, NewApiError(ErrCodeValidation, "a void reason is required")
	}

	txn, err := utils.FetchModel[Transaction](ctx, organizationId, transactionId, "Lines")
	if err != nil {
		return nil, NewApiError(ErrCodeTransactionNotFound, "transaction not found")
	}
	if txn.TransactionStatus == TransactionStatusVoided {
		return txn, nil
	}
	if !CanTransitionTransactionStatus(txn.TransactionStatus, TransactionStatusVoided) {
		return nil, NewApiError(ErrCodeGovernance,
			"cannot void a transaction in status "+string(txn.TransactionStatus))
	}
	oldTxn := *txn

	now := time.Now().UTC()
	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(txn).Updates(map[string]interface{}{
		"transaction_status": TransactionStatusVoided,
		"void_reason":        reason,
		"voided_by":          actorUserId,
		"voided_at":          now,
		"updated_by":         actorUserId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeTransaction, transactionId, AuditActionVoid, txn, oldTxn); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return txn, nil
}
