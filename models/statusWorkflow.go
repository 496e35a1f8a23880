package models

import (
	"context"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

// Status and workflow state are modeled as HAS_STATUS relationship edges to
// status entities rather than mutable columns. Each transition appends a new
// edge and deactivates the prior one, so the full state history survives.

type EntityLifecycle string

const (
	EntityLifecycleActive   EntityLifecycle = "ACTIVE"
	EntityLifecycleInactive EntityLifecycle = "INACTIVE"
	EntityLifecycleArchived EntityLifecycle = "ARCHIVED"
)

const statusEntityType = "workflow_status"

// StatusWorkflow is a named set of states with the transitions allowed
// between them.
type StatusWorkflow struct {
	Name        string
	States      []string
	Transitions map[string][]string
}

// entityLifecycleWorkflow governs the lifecycle states seeded into every new
// organization.
var entityLifecycleWorkflow = StatusWorkflow{
	Name:   "entity_lifecycle",
	States: []string{string(EntityLifecycleActive), string(EntityLifecycleInactive), string(EntityLifecycleArchived)},
	Transitions: map[string][]string{
		string(EntityLifecycleActive):   {string(EntityLifecycleInactive), string(EntityLifecycleArchived)},
		string(EntityLifecycleInactive): {string(EntityLifecycleActive), string(EntityLifecycleArchived)},
		string(EntityLifecycleArchived): {},
	},
}

// CanTransition reports whether the workflow allows moving from one state to
// another. Same-state transitions are allowed and end up as no-ops.
func (w StatusWorkflow) CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := w.Transitions[from]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == to {
			return true
		}
	}
	return false
}

func statusSmartCode(state string) string {
	return "HERA.SYSTEM.WORKFLOW.STATUS." + state + ".v1"
}

// seedStatusEntities creates one status entity per lifecycle state inside the
// organization-creation transaction, so HAS_STATUS edges always have a target
// to point at.
func seedStatusEntities(ctx context.Context, tx *gorm.DB, organizationId string, actorUserId int) error {
	for _, state := range entityLifecycleWorkflow.States {
		code := state
		entity := Entity{
			OrganizationId: organizationId,
			EntityType:     statusEntityType,
			EntityName:     state,
			EntityCode:     &code,
			SmartCode:      statusSmartCode(state),
			Status:         EntityLifecycleActive,
			CreatedBy:      actorUserId,
			UpdatedBy:      actorUserId,
		}
		if err := tx.WithContext(ctx).Create(&entity).Error; err != nil {
			return err
		}
	}
	return nil
}

func findStatusEntity(ctx context.Context, tx *gorm.DB, organizationId string, state string) (*Entity, error) {
	var entity Entity
	err := tx.WithContext(ctx).
		Where("organization_id = ?", organizationId).
		Where("entity_type = ? AND entity_code = ?", statusEntityType, state).
		First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// setEntityStatusTx deactivates the entity's current HAS_STATUS edge and
// appends a new one pointing at the status entity for the target state. Runs
// inside the caller's transaction.
func setEntityStatusTx(ctx context.Context, tx *gorm.DB, organizationId string, actorUserId int, entityId string, state string) error {
	statusEntity, err := findStatusEntity(ctx, tx, organizationId, state)
	if err != nil {
		return NewApiError(ErrCodeNotFound, "unknown workflow status: "+state)
	}

	if err := tx.WithContext(ctx).Model(&Relationship{}).
		Where("organization_id = ?", organizationId).
		Where("from_entity_id = ? AND relationship_type = ? AND is_active = ?", entityId, RelationshipTypeHasStatus, true).
		Updates(map[string]interface{}{"is_active": false, "updated_by": actorUserId}).Error; err != nil {
		return err
	}

	_, err = appendRelationships(ctx, tx, organizationId, entityId, actorUserId, []*NewEntityRelationship{{
		ToEntityId:       statusEntity.ID.String(),
		RelationshipType: RelationshipTypeHasStatus,
		SmartCode:        statusSmartCode(state),
	}})
	return err
}

// SetEntityStatus transitions an entity through the lifecycle workflow. The
// Status column is updated as a denormalized mirror of the active HAS_STATUS
// edge.
func SetEntityStatus(ctx context.Context, organizationId string, actorUserId int, entityId string, state string) (*Entity, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	entity, err := utils.FetchModel[Entity](ctx, organizationId, entityId)
	if err != nil {
		return nil, NewApiError(ErrCodeEntityNotFound, "entity not found")
	}
	if string(entity.Status) == state {
		return entity, nil
	}
	if !entityLifecycleWorkflow.CanTransition(string(entity.Status), state) {
		return nil, NewApiError(ErrCodeGovernance, "illegal status transition "+string(entity.Status)+" -> "+state)
	}
	oldEntity := *entity

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(entity).Updates(map[string]interface{}{
		"status":     state,
		"updated_by": actorUserId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := setEntityStatusTx(ctx, tx, organizationId, actorUserId, entityId, state); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeEntity, entityId, AuditActionUpdate, entity, oldEntity); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return entity, nil
}

// CurrentEntityStatus resolves the entity's state from its active HAS_STATUS
// edge, falling back to the denormalized column when no edge exists yet.
func CurrentEntityStatus(ctx context.Context, organizationId string, actorUserId int, entityId string) (string, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return "", err
	}

	var edge Relationship
	err = tenantDB(ctx, organizationId).
		Where("from_entity_id = ? AND relationship_type = ? AND is_active = ?", entityId, RelationshipTypeHasStatus, true).
		Order("created_at DESC").
		First(&edge).Error
	if err == nil {
		statusEntity, err := utils.FetchModel[Entity](ctx, organizationId, edge.ToEntityId)
		if err == nil && statusEntity.EntityCode != nil {
			return *statusEntity.EntityCode, nil
		}
	}

	entity, err := utils.FetchModel[Entity](ctx, organizationId, entityId)
	if err != nil {
		return "", NewApiError(ErrCodeEntityNotFound, "entity not found")
	}
	return string(entity.Status), nil
}
