package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a free-form JSON object column (entity metadata,
// relationship_data, transaction line_data, organization settings).
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

type TransactionStatus string

const (
	TransactionStatusCreated   TransactionStatus = "CREATED"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusVoided    TransactionStatus = "VOIDED"
)

// transactionStatusTransitions is the legal state machine for transaction
// headers. VOIDED is terminal.
var transactionStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusCreated:   {TransactionStatusCompleted, TransactionStatusVoided},
	TransactionStatusCompleted: {TransactionStatusVoided},
	TransactionStatusVoided:    {},
}

func CanTransitionTransactionStatus(from, to TransactionStatus) bool {
	for _, next := range transactionStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeJson    FieldType = "json"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate, FieldTypeJson:
		return true
	}
	return false
}

// RelationshipType is drawn from a governed vocabulary, never an arbitrary
// string supplied by callers.
type RelationshipType string

const (
	RelationshipTypeHasStatus   RelationshipType = "HAS_STATUS"
	RelationshipTypeParentOf    RelationshipType = "PARENT_OF"
	RelationshipTypeMemberOf    RelationshipType = "MEMBER_OF"
	RelationshipTypeLinkedTo    RelationshipType = "LINKED_TO"
	RelationshipTypeAssignedTo  RelationshipType = "ASSIGNED_TO"
	RelationshipTypeLocatedAt   RelationshipType = "LOCATED_AT"
	RelationshipTypeReportsTo   RelationshipType = "REPORTS_TO"
	RelationshipTypeSuppliedBy  RelationshipType = "SUPPLIED_BY"
	RelationshipTypeVariantOf   RelationshipType = "VARIANT_OF"
	RelationshipTypeReplacedBy  RelationshipType = "REPLACED_BY"
	RelationshipTypeBilledTo    RelationshipType = "BILLED_TO"
	RelationshipTypeReferredBy  RelationshipType = "REFERRED_BY"
	RelationshipTypeHasRole     RelationshipType = "HAS_ROLE"
	RelationshipTypeInstalledAt RelationshipType = "INSTALLED_AT"
)

var relationshipVocabulary = map[RelationshipType]bool{
	RelationshipTypeHasStatus:   true,
	RelationshipTypeParentOf:    true,
	RelationshipTypeMemberOf:    true,
	RelationshipTypeLinkedTo:    true,
	RelationshipTypeAssignedTo:  true,
	RelationshipTypeLocatedAt:   true,
	RelationshipTypeReportsTo:   true,
	RelationshipTypeSuppliedBy:  true,
	RelationshipTypeVariantOf:   true,
	RelationshipTypeReplacedBy:  true,
	RelationshipTypeBilledTo:    true,
	RelationshipTypeReferredBy:  true,
	RelationshipTypeHasRole:     true,
	RelationshipTypeInstalledAt: true,
}

func (t RelationshipType) Valid() bool {
	return relationshipVocabulary[t]
}

type LineType string

const (
	LineTypeItem     LineType = "ITEM"
	LineTypeService  LineType = "SERVICE"
	LineTypeTax      LineType = "TAX"
	LineTypeDiscount LineType = "DISCOUNT"
	LineTypePayment  LineType = "PAYMENT"
	LineTypeGL       LineType = "GL"
	LineTypeFee      LineType = "FEE"
)

// MemberRole is the role of a user inside one organization.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

func (r MemberRole) CanWrite() bool {
	switch r {
	case MemberRoleOwner, MemberRoleAdmin, MemberRoleMember:
		return true
	}
	return false
}

type AuditReferenceType string

const (
	AuditReferenceTypeEntity       AuditReferenceType = "ENTITY"
	AuditReferenceTypeRelationship AuditReferenceType = "RELATIONSHIP"
	AuditReferenceTypeTransaction  AuditReferenceType = "TRANSACTION"
	AuditReferenceTypeOrganization AuditReferenceType = "ORGANIZATION"
)

type AuditAction string

const (
	AuditActionCreate     AuditAction = "CREATE"
	AuditActionUpdate     AuditAction = "UPDATE"
	AuditActionVoid       AuditAction = "VOID"
	AuditActionArchive    AuditAction = "ARCHIVE"
	AuditActionDeactivate AuditAction = "DEACTIVATE"
)

type OutboxPublishStatus = string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusPublished  OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)
