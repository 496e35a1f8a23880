package models

import (
	"context"
)

// EntityAction is the verb carried in an entity CRUD envelope.
type EntityAction string

const (
	EntityActionCreate EntityAction = "CREATE"
	EntityActionRead   EntityAction = "READ"
	EntityActionUpdate EntityAction = "UPDATE"
	EntityActionQuery  EntityAction = "QUERY"
	EntityActionDelete EntityAction = "DELETE"
)

// EntityRequest is the envelope every entity CRUD caller submits. The
// organization_id and actor_user_id inside the envelope are the only tenant
// scope the engine trusts; anything tenant-shaped inside the nested payload
// is ignored.
type EntityRequest struct {
	Action         EntityAction                `json:"action" binding:"required"`
	ActorUserId    int                         `json:"actor_user_id"`
	OrganizationId string                      `json:"organization_id"`
	EntityId       string                      `json:"entity_id"`
	Entity         *NewEntity                  `json:"entity"`
	Update         *UpdateEntityInput          `json:"update"`
	Dynamic        map[string]*NewDynamicField `json:"dynamic"`
	Relationships  []*NewEntityRelationship    `json:"relationships"`
	Filter         *EntityFilter               `json:"filter"`
	Options        EntityReadOptions           `json:"options"`
}

// ApiResponse is the uniform success/error envelope. Callers branch on
// Success; Error carries the stable taxonomy code when Success is false.
type ApiResponse struct {
	Success bool        `json:"success"`
	Action  string      `json:"action,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   ErrorCode   `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(action string, data interface{}) *ApiResponse {
	return &ApiResponse{Success: true, Action: action, Data: data}
}

func errorResponse(action string, err error) *ApiResponse {
	apiErr := AsApiError(err)
	return &ApiResponse{Success: false, Action: action, Error: apiErr.Code, Message: apiErr.Message}
}

// DispatchEntityRequest routes one entity envelope to the engine operation
// named by its action. Errors come back inside the response envelope, never
// as a Go error, so every caller sees one uniform shape.
func DispatchEntityRequest(ctx context.Context, req *EntityRequest) *ApiResponse {
	action := string(req.Action)
	switch req.Action {
	case EntityActionCreate:
		if req.Entity == nil {
			return errorResponse(action, NewApiError(ErrCodeValidation, "CREATE requires an entity payload"))
		}
		if req.Entity.Dynamic == nil {
			req.Entity.Dynamic = req.Dynamic
		}
		if req.Entity.Relationships == nil {
			req.Entity.Relationships = req.Relationships
		}
		composed, err := CreateEntity(ctx, req.OrganizationId, req.ActorUserId, req.Entity)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, composed)

	case EntityActionRead:
		if req.EntityId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "READ requires entity_id"))
		}
		composed, err := GetEntity(ctx, req.OrganizationId, req.ActorUserId, req.EntityId, req.Options)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, composed)

	case EntityActionUpdate:
		if req.EntityId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "UPDATE requires entity_id"))
		}
		update := req.Update
		if update == nil {
			update = &UpdateEntityInput{}
		}
		if update.Dynamic == nil {
			update.Dynamic = req.Dynamic
		}
		if update.Relationships == nil {
			update.Relationships = req.Relationships
		}
		composed, err := UpdateEntity(ctx, req.OrganizationId, req.ActorUserId, req.EntityId, update)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, composed)

	case EntityActionQuery:
		filter := EntityFilter{}
		if req.Filter != nil {
			filter = *req.Filter
		}
		entities, err := QueryEntities(ctx, req.OrganizationId, req.ActorUserId, filter)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, entities)

	case EntityActionDelete:
		if req.EntityId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "DELETE requires entity_id"))
		}
		entity, err := ArchiveEntity(ctx, req.OrganizationId, req.ActorUserId, req.EntityId)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, entity)

	default:
		return errorResponse(action, NewApiError(ErrCodeValidation, "unknown entity action: "+action))
	}
}
