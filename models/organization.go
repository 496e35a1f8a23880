package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/utils"
)

// Organization is the tenant boundary. Every other row in the store carries
// exactly one organization_id; there is no cross-tenant default scope.
type Organization struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	Code      string    `gorm:"size:100;uniqueIndex" json:"code"`
	Settings  JSONMap   `gorm:"type:json" json:"settings"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrganizationUser is one user's membership (and role) inside one organization.
type OrganizationUser struct {
	ID             int        `gorm:"primary_key" json:"id"`
	OrganizationId string     `gorm:"type:char(36);uniqueIndex:idx_org_user;not null" json:"organization_id"`
	UserId         int        `gorm:"uniqueIndex:idx_org_user;not null" json:"user_id"`
	Role           MemberRole `gorm:"type:enum('owner','admin','member');default:member" json:"role"`
	IsActive       *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrganization struct {
	Name     string  `json:"name" binding:"required"`
	Code     string  `json:"code"`
	Settings JSONMap `json:"settings"`
}

// CreateOrganization creates the tenant, grants the acting user the owner
// membership and seeds the lifecycle status entities, all in one transaction.
func CreateOrganization(ctx context.Context, actorUserId int, input *NewOrganization) (*Organization, error) {
	if actorUserId <= 0 {
		return nil, NewApiError(ErrCodeValidation, "actor_user_id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, NewApiError(ErrCodeValidation, "invalid organization input")
	}

	if input.Code != "" {
		if err := utils.ValidateUnique[Organization](ctx, "", "code", input.Code, 0); err != nil {
			return nil, NewApiError(ErrCodeConflict, "duplicate organization code")
		}
	}

	org := Organization{
		ID:       uuid.New(),
		Name:     input.Name,
		Code:     input.Code,
		Settings: input.Settings,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}

	membership := OrganizationUser{
		OrganizationId: org.ID.String(),
		UserId:         actorUserId,
		Role:           MemberRoleOwner,
		IsActive:       utils.NewTrue(),
	}
	if err := tx.WithContext(ctx).Create(&membership).Error; err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}

	if err := seedStatusEntities(ctx, tx, org.ID.String(), actorUserId); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}

	if err := RecordAuditEvent(ctx, tx, org.ID.String(), actorUserId, AuditReferenceTypeOrganization, org.ID.String(), AuditActionCreate, org, nil); err != nil {
		tx.Rollback()
		return nil, AsApiError(err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, AsApiError(err)
	}
	return &org, nil
}

func GetOrganization(ctx context.Context, organizationId string) (*Organization, error) {
	if organizationId == "" {
		return nil, NewApiError(ErrCodeOrgRequired, "organization_id is required")
	}
	db := config.GetDB()
	var org Organization
	if err := db.WithContext(ctx).Where("id = ?", organizationId).First(&org).Error; err != nil {
		return nil, NewApiError(ErrCodeNotFound, "organization not found")
	}
	return &org, nil
}

// AddOrganizationMember grants a user membership in an organization. Only
// owners and admins may manage membership.
func AddOrganizationMember(ctx context.Context, organizationId string, actorUserId int, userId int, role MemberRole) (*OrganizationUser, error) {
	actor, err := ResolveActor(ctx, organizationId, actorUserId)
	if err != nil {
		return nil, err
	}
	if actor.Role != MemberRoleOwner && actor.Role != MemberRoleAdmin {
		return nil, NewApiError(ErrCodeNotAuthorized, "only owners and admins can manage membership")
	}
	if role == "" {
		role = MemberRoleMember
	}
	if err := utils.ValidateResourceId[User](ctx, "", userId); err != nil {
		return nil, NewApiError(ErrCodeNotFound, "user not found")
	}

	membership := OrganizationUser{
		OrganizationId: organizationId,
		UserId:         userId,
		Role:           role,
		IsActive:       utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&membership).Error; err != nil {
		return nil, AsApiError(err)
	}
	invalidateMembershipCache(organizationId, userId)
	return &membership, nil
}

// RemoveOrganizationMember deactivates a membership; the row is kept for audit.
func RemoveOrganizationMember(ctx context.Context, organizationId string, actorUserId int, userId int) error {
	actor, err := ResolveActor(ctx, organizationId, actorUserId)
	if err != nil {
		return err
	}
	if actor.Role != MemberRoleOwner && actor.Role != MemberRoleAdmin {
		return NewApiError(ErrCodeNotAuthorized, "only owners and admins can manage membership")
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&OrganizationUser{}).
		Where("organization_id = ? AND user_id = ?", organizationId, userId).
		Update("is_active", false).Error; err != nil {
		return AsApiError(err)
	}
	invalidateMembershipCache(organizationId, userId)
	return nil
}
