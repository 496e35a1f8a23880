package models

import (
	"context"
	"fmt"
	"time"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

// tenantDB returns a DB handle carrying both the explicit organization_id
// WHERE clause and the context value the tenant-guard plugin keys on.
func tenantDB(ctx context.Context, organizationId string) *gorm.DB {
	scoped := utils.SetOrganizationIdInContext(ctx, organizationId)
	return config.GetDB().WithContext(scoped).Where("organization_id = ?", organizationId)
}

// membershipCacheTTL keeps role resolution fresh. A role change or an
// organization switch is picked up after at most this window, and explicit
// membership mutations invalidate the key immediately.
const membershipCacheTTL = 5 * time.Minute

func membershipCacheKey(organizationId string, userId int) string {
	return "membership:" + organizationId + ":" + fmt.Sprint(userId)
}

// ResolveActor authorizes one call: it requires an explicit organization_id
// and actor_user_id, resolves the actor's active membership in that
// organization and returns it. There is no ambient "current organization";
// omitting the organization is a hard error, never a silent default.
func ResolveActor(ctx context.Context, organizationId string, actorUserId int) (*OrganizationUser, error) {
	if organizationId == "" {
		return nil, NewApiError(ErrCodeOrgRequired, "organization_id is required")
	}
	if actorUserId <= 0 {
		return nil, NewApiError(ErrCodeValidation, "actor_user_id is required")
	}

	cacheKey := membershipCacheKey(organizationId, actorUserId)
	var cached OrganizationUser
	exists, err := config.GetRedisObject(cacheKey, &cached)
	if err == nil && exists {
		if cached.IsActive != nil && !*cached.IsActive {
			return nil, NewApiError(ErrCodeNotAuthorized, "actor is not a member of this organization")
		}
		return &cached, nil
	}

	db := config.GetDB()
	var membership OrganizationUser
	if err := db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", organizationId, actorUserId).
		First(&membership).Error; err != nil {
		return nil, NewApiError(ErrCodeNotAuthorized, "actor is not a member of this organization")
	}
	if membership.IsActive != nil && !*membership.IsActive {
		return nil, NewApiError(ErrCodeNotAuthorized, "actor membership is deactivated")
	}

	if err := config.SetRedisObject(cacheKey, &membership, membershipCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "models", "ResolveActor", "membership cache", cacheKey, err)
	}
	return &membership, nil
}

func invalidateMembershipCache(organizationId string, userId int) {
	if err := config.RemoveRedisKey(membershipCacheKey(organizationId, userId)); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateMembershipCache", "redis", organizationId, err)
	}
}

// authorizeWrite resolves the actor and returns a context carrying the
// organization id so the tenant-guard DB plugin scopes every statement as a
// backstop to the explicit WHERE clauses.
func authorizeWrite(ctx context.Context, organizationId string, actorUserId int) (context.Context, *OrganizationUser, error) {
	membership, err := ResolveActor(ctx, organizationId, actorUserId)
	if err != nil {
		return ctx, nil, err
	}
	if !membership.Role.CanWrite() {
		return ctx, nil, NewApiError(ErrCodeNotAuthorized, "actor role cannot write")
	}
	return utils.SetOrganizationIdInContext(ctx, organizationId), membership, nil
}

// authorizeRead is authorizeWrite without the role check; reads only require
// active membership.
func authorizeRead(ctx context.Context, organizationId string, actorUserId int) (context.Context, *OrganizationUser, error) {
	membership, err := ResolveActor(ctx, organizationId, actorUserId)
	if err != nil {
		return ctx, nil, err
	}
	return utils.SetOrganizationIdInContext(ctx, organizationId), membership, nil
}
