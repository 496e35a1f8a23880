package models

import (
	"context"
	"time"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/smartcode"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

// Relationship is a directed, typed edge between two entities. Edges are
// append-only: state changes deactivate an edge and add a new one, they never
// overwrite in place, so the full history of associations survives.
type Relationship struct {
	ID               int              `gorm:"primary_key" json:"id"`
	OrganizationId   string           `gorm:"type:char(36);index;not null" json:"organization_id"`
	FromEntityId     string           `gorm:"type:char(36);index;not null" json:"from_entity_id"`
	ToEntityId       string           `gorm:"type:char(36);index;not null" json:"to_entity_id"`
	RelationshipType RelationshipType `gorm:"size:100;not null;index" json:"relationship_type"`
	RelationshipData JSONMap          `gorm:"type:json" json:"relationship_data"`
	SmartCode        string           `gorm:"size:255;not null" json:"smart_code"`
	IsActive         *bool            `gorm:"not null;default:true;index" json:"is_active"`
	EffectiveDate    time.Time        `json:"effective_date"`
	CreatedBy        int              `json:"created_by"`
	UpdatedBy        int              `json:"updated_by"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewEntityRelationship is the edge input supplied alongside entity
// create/update. The from-side is always the entity being written.
type NewEntityRelationship struct {
	ToEntityId       string           `json:"to_entity_id" binding:"required"`
	RelationshipType RelationshipType `json:"relationship_type" binding:"required"`
	RelationshipData JSONMap          `json:"relationship_data"`
	SmartCode        string           `json:"smart_code" binding:"required"`
	EffectiveDate    *time.Time       `json:"effective_date"`
}

type RelationshipDirection string

const (
	RelationshipDirectionFrom   RelationshipDirection = "from"
	RelationshipDirectionTo     RelationshipDirection = "to"
	RelationshipDirectionEither RelationshipDirection = "either"
)

func (input *NewEntityRelationship) validate(ctx context.Context, organizationId string) error {
	if !input.RelationshipType.Valid() {
		return NewApiError(ErrCodeValidation, "relationship_type is not in the governed vocabulary: "+string(input.RelationshipType))
	}
	if !smartcode.Validate(input.SmartCode) {
		return NewApiError(ErrCodeInvalidSmartCode, "invalid smart code on relationship")
	}
	if err := utils.ValidateResourceId[Entity](ctx, organizationId, input.ToEntityId); err != nil {
		return NewApiError(ErrCodeEntityNotFound, "relationship target entity not found")
	}
	return nil
}

// appendRelationships inserts the supplied edges inside the caller's
// transaction. Existing edges are never replaced.
func appendRelationships(ctx context.Context, tx *gorm.DB, organizationId string, fromEntityId string, actorUserId int, inputs []*NewEntityRelationship) ([]Relationship, error) {
	edges := make([]Relationship, 0, len(inputs))
	for _, input := range inputs {
		if input == nil {
			continue
		}
		if err := input.validate(ctx, organizationId); err != nil {
			return nil, err
		}
		effective := time.Now().UTC()
		if input.EffectiveDate != nil {
			effective = *input.EffectiveDate
		}
		edge := Relationship{
			OrganizationId:   organizationId,
			FromEntityId:     fromEntityId,
			ToEntityId:       input.ToEntityId,
			RelationshipType: input.RelationshipType,
			RelationshipData: input.RelationshipData,
			SmartCode:        input.SmartCode,
			IsActive:         utils.NewTrue(),
			EffectiveDate:    effective,
			CreatedBy:        actorUserId,
			UpdatedBy:        actorUserId,
		}
		if err := tx.WithContext(ctx).Create(&edge).Error; err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// CreateRelationship appends one edge between two existing entities.
func CreateRelationship(ctx context.Context, organizationId string, actorUserId int, fromEntityId string, input *NewEntityRelationship) (*Relationship, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Entity](ctx, organizationId, fromEntityId); err != nil {
		return nil, NewApiError(ErrCodeEntityNotFound, "relationship source entity not found")
	}

	db := config.GetDB()
	tx := db.Begin()
	edges, err := appendRelationships(ctx, tx, organizationId, fromEntityId, actorUserId, []*NewEntityRelationship{input})
	if err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	edge := edges[0]
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeRelationship, edge.FromEntityId, AuditActionCreate, edge, nil); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return &edge, nil
}

// QueryRelationships returns the edges touching an entity. Direction selects
// the side the entity appears on; relationshipType is optional. Only active
// edges are returned unless includeInactive is set.
func QueryRelationships(ctx context.Context, organizationId string, actorUserId int, entityId string, direction RelationshipDirection, relationshipType *RelationshipType, includeInactive bool) ([]*Relationship, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	dbCtx := tenantDB(ctx, organizationId)
	switch direction {
	case RelationshipDirectionFrom:
		dbCtx = dbCtx.Where("from_entity_id = ?", entityId)
	case RelationshipDirectionTo:
		dbCtx = dbCtx.Where("to_entity_id = ?", entityId)
	default:
		dbCtx = dbCtx.Where("from_entity_id = ? OR to_entity_id = ?", entityId, entityId)
	}
	if relationshipType != nil && *relationshipType != "" {
		dbCtx = dbCtx.Where("relationship_type = ?", *relationshipType)
	}
	if !includeInactive {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}

	var edges []*Relationship
	if err := dbCtx.Order("created_at DESC").Find(&edges).Error; err != nil {
		return nil, AsApiError(err)
	}
	return edges, nil
}

// DeactivateRelationship flips is_active off. The row is retained; history is
// never deleted.
func DeactivateRelationship(ctx context.Context, organizationId string, actorUserId int, edgeId int) (*Relationship, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	edge, err := utils.FetchModel[Relationship](ctx, organizationId, edgeId)
	if err != nil {
		return nil, NewApiError(ErrCodeNotFound, "relationship not found")
	}
	oldEdge := *edge

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(edge).Updates(map[string]interface{}{
		"is_active":  false,
		"updated_by": actorUserId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeRelationship, edge.FromEntityId, AuditActionDeactivate, edge, oldEdge); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return edge, nil
}
