package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/smartcode"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

// Entity is a polymorphic business object: customers, products, appointments,
// staff, roles and status markers all live in this one table, discriminated by
// EntityType. Rows are never physically deleted in normal flow; lifecycle is
// tracked through the Status column and HAS_STATUS relationship edges.
type Entity struct {
	ID             uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	OrganizationId string          `gorm:"type:char(36);uniqueIndex:idx_entity_org_type_code;not null" json:"organization_id"`
	EntityType     string          `gorm:"size:100;uniqueIndex:idx_entity_org_type_code;not null;index" json:"entity_type"`
	EntityName     string          `gorm:"size:255;not null" json:"entity_name"`
	EntityCode     *string         `gorm:"size:100;uniqueIndex:idx_entity_org_type_code" json:"entity_code"`
	SmartCode      string          `gorm:"size:255;not null;index" json:"smart_code"`
	Status         EntityLifecycle `gorm:"size:30;not null;default:'ACTIVE';index" json:"status"`
	Metadata       JSONMap         `gorm:"type:json" json:"metadata"`
	CreatedBy      int             `json:"created_by"`
	UpdatedBy      int             `json:"updated_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Entity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ComposedEntity is the read shape: header plus whichever sections the caller
// asked for via include flags.
type ComposedEntity struct {
	Entity        *Entity         `json:"entity"`
	DynamicData   []*DynamicData  `json:"dynamic_data,omitempty"`
	Relationships []*Relationship `json:"relationships,omitempty"`
}

type NewEntity struct {
	EntityType    string                      `json:"entity_type" binding:"required"`
	EntityName    string                      `json:"entity_name" binding:"required"`
	EntityCode    *string                     `json:"entity_code"`
	SmartCode     string                      `json:"smart_code" binding:"required"`
	Metadata      JSONMap                     `json:"metadata"`
	Dynamic       map[string]*NewDynamicField `json:"dynamic"`
	Relationships []*NewEntityRelationship    `json:"relationships"`
}

type UpdateEntityInput struct {
	EntityName    *string                     `json:"entity_name"`
	EntityCode    *string                     `json:"entity_code"`
	SmartCode     *string                     `json:"smart_code"`
	Metadata      JSONMap                     `json:"metadata"`
	Dynamic       map[string]*NewDynamicField `json:"dynamic"`
	Relationships []*NewEntityRelationship    `json:"relationships"`
}

// EntityFilter holds the QUERY operation's filter set.
type EntityFilter struct {
	EntityTypes []string `json:"entity_types"`
	EntityCode  *string  `json:"entity_code"`
	Ids         []string `json:"ids"`
	SmartCodes  []string `json:"smart_codes"`
	Status      *string  `json:"status"`
	Limit       int      `json:"limit"`
	Offset      int      `json:"offset"`
	OrderBy     string   `json:"order_by"`
}

// EntityReadOptions controls the payload shape of READ.
type EntityReadOptions struct {
	IncludeDynamic       bool `json:"include_dynamic"`
	IncludeRelationships bool `json:"include_relationships"`
}

func (input *NewEntity) validate(ctx context.Context, organizationId string) error {
	if input.EntityType == "" || input.EntityName == "" {
		return NewApiError(ErrCodeValidation, "entity_type and entity_name are required")
	}
	if !smartcode.Validate(input.SmartCode) {
		return NewApiError(ErrCodeInvalidSmartCode, "invalid smart code: "+input.SmartCode)
	}
	if input.EntityCode != nil && *input.EntityCode != "" {
		count, err := utils.ResourceCountWhere[Entity](ctx, organizationId,
			"entity_type = ? AND entity_code = ?", input.EntityType, *input.EntityCode)
		if err != nil {
			return err
		}
		if count > 0 {
			return NewApiError(ErrCodeDuplicateCode, "entity code already in use for this type: "+*input.EntityCode)
		}
	}
	for name, field := range input.Dynamic {
		if field == nil {
			return NewApiError(ErrCodeValidation, "dynamic field has no value: "+name)
		}
		if !smartcode.Validate(field.SmartCode) {
			return NewApiError(ErrCodeInvalidSmartCode, "invalid smart code on dynamic field "+name)
		}
	}
	return nil
}

// CreateEntity inserts the entity row together with any supplied dynamic
// fields and relationship edges as one atomic unit. Nothing persists if any
// part fails validation.
func CreateEntity(ctx context.Context, organizationId string, actorUserId int, input *NewEntity) (*ComposedEntity, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, organizationId); err != nil {
		return nil, err
	}

	entity := Entity{
		OrganizationId: organizationId,
		EntityType:     input.EntityType,
		EntityName:     input.EntityName,
		EntityCode:     input.EntityCode,
		SmartCode:      input.SmartCode,
		Status:         EntityLifecycleActive,
		Metadata:       input.Metadata,
		CreatedBy:      actorUserId,
		UpdatedBy:      actorUserId,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&entity).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	dynamicRows, err := upsertDynamicFields(ctx, tx, organizationId, entity.ID.String(), actorUserId, input.Dynamic)
	if err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	edges, err := appendRelationships(ctx, tx, organizationId, entity.ID.String(), actorUserId, input.Relationships)
	if err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeEntity, entity.ID.String(), AuditActionCreate, entity, nil); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}

	composed := &ComposedEntity{Entity: &entity, DynamicData: dynamicRows}
	for i := range edges {
		composed.Relationships = append(composed.Relationships, &edges[i])
	}
	return composed, nil
}

// GetEntity reads one entity in organization scope. Rows belonging to other
// tenants are indistinguishable from missing rows.
func GetEntity(ctx context.Context, organizationId string, actorUserId int, entityId string, opts EntityReadOptions) (*ComposedEntity, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	entity, err := utils.FetchModel[Entity](ctx, organizationId, entityId)
	if err != nil {
		return nil, NewApiError(ErrCodeEntityNotFound, "entity not found")
	}

	composed := &ComposedEntity{Entity: entity}
	if opts.IncludeDynamic {
		rows, err := GetEntityDynamicData(ctx, organizationId, entityId)
		if err != nil {
			return nil, AsApiError(err)
		}
		composed.DynamicData = rows
	}
	if opts.IncludeRelationships {
		edges, err := QueryRelationships(ctx, organizationId, actorUserId, entityId, RelationshipDirectionEither, nil, false)
		if err != nil {
			return nil, err
		}
		composed.Relationships = edges
	}
	return composed, nil
}

// UpdateEntity applies a partial update. Supplied dynamic fields are upserted,
// supplied relationships are appended, everything omitted is untouched. The
// entity is never re-typed.
func UpdateEntity(ctx context.Context, organizationId string, actorUserId int, entityId string, input *UpdateEntityInput) (*ComposedEntity, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	entity, err := utils.FetchModel[Entity](ctx, organizationId, entityId)
	if err != nil {
		return nil, NewApiError(ErrCodeEntityNotFound, "entity not found")
	}
	oldEntity := *entity

	updates := map[string]interface{}{"updated_by": actorUserId}
	if input.EntityName != nil {
		if *input.EntityName == "" {
			return nil, NewApiError(ErrCodeValidation, "entity_name cannot be blank")
		}
		updates["entity_name"] = *input.EntityName
	}
	if input.SmartCode != nil {
		if !smartcode.Validate(*input.SmartCode) {
			return nil, NewApiError(ErrCodeInvalidSmartCode, "invalid smart code: "+*input.SmartCode)
		}
		updates["smart_code"] = *input.SmartCode
	}
	if input.EntityCode != nil {
		if *input.EntityCode != "" {
			count, err := utils.ResourceCountWhere[Entity](ctx, organizationId,
				"entity_type = ? AND entity_code = ? AND id <> ?", entity.EntityType, *input.EntityCode, entity.ID.String())
			if err != nil {
				return nil, AsApiError(err)
			}
			if count > 0 {
				return nil, NewApiError(ErrCodeDuplicateCode, "entity code already in use for this type: "+*input.EntityCode)
			}
		}
		updates["entity_code"] = input.EntityCode
	}
	if input.Metadata != nil {
		updates["metadata"] = input.Metadata
	}
	for name, field := range input.Dynamic {
		if field == nil {
			return nil, NewApiError(ErrCodeValidation, "dynamic field has no value: "+name)
		}
		if !smartcode.Validate(field.SmartCode) {
			return nil, NewApiError(ErrCodeInvalidSmartCode, "invalid smart code on dynamic field "+name)
		}
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(entity).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if _, err := upsertDynamicFields(ctx, tx, organizationId, entityId, actorUserId, input.Dynamic); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if _, err := appendRelationships(ctx, tx, organizationId, entityId, actorUserId, input.Relationships); err != nil {
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

	return GetEntity(ctx, organizationId, actorUserId, entityId, EntityReadOptions{IncludeDynamic: true, IncludeRelationships: true})
}

// QueryEntities lists entities by filter with limit/offset pagination.
func QueryEntities(ctx context.Context, organizationId string, actorUserId int, filter EntityFilter) ([]*Entity, error) {
	ctx, _, err := authorizeRead(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	dbCtx := tenantDB(ctx, organizationId)
	if len(filter.EntityTypes) > 0 {
		dbCtx = dbCtx.Where("entity_type IN ?", filter.EntityTypes)
	}
	if filter.EntityCode != nil && *filter.EntityCode != "" {
		dbCtx = dbCtx.Where("entity_code = ?", *filter.EntityCode)
	}
	if len(filter.Ids) > 0 {
		dbCtx = dbCtx.Where("id IN ?", filter.Ids)
	}
	if len(filter.SmartCodes) > 0 {
		dbCtx = dbCtx.Where("smart_code IN ?", filter.SmartCodes)
	}
	if filter.Status != nil && *filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}
	order := "created_at DESC"
	switch filter.OrderBy {
	case "entity_name":
		order = "entity_name ASC"
	case "entity_code":
		order = "entity_code ASC"
	case "created_at":
		order = "created_at ASC"
	}

	var entities []*Entity
	if err := dbCtx.Order(order).Limit(limit).Offset(filter.Offset).Find(&entities).Error; err != nil {
		return nil, AsApiError(err)
	}
	return entities, nil
}

// ArchiveEntity soft-deletes: status flips to ARCHIVED and a status edge is
// appended. The row and all its history remain readable.
func ArchiveEntity(ctx context.Context, organizationId string, actorUserId int, entityId string) (*Entity, error) {
	ctx, _, err := authorizeWrite(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}

	entity, err := utils.FetchModel[Entity](ctx, organizationId, entityId)
	if err != nil {
		return nil, NewApiError(ErrCodeEntityNotFound, "entity not found")
	}
	oldEntity := *entity

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(entity).Updates(map[string]interface{}{
		"status":     EntityLifecycleArchived,
		"updated_by": actorUserId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := setEntityStatusTx(ctx, tx, organizationId, actorUserId, entityId, string(EntityLifecycleArchived)); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := RecordAuditEvent(ctx, tx, organizationId, actorUserId, AuditReferenceTypeEntity, entityId, AuditActionArchive, entity, oldEntity); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return entity, nil
}
