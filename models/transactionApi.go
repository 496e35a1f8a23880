package models

import (
	"context"
)

// TransactionAction is the verb carried in a transaction CRUD envelope.
type TransactionAction string

const (
	TransactionActionCreate   TransactionAction = "CREATE"
	TransactionActionRead     TransactionAction = "READ"
	TransactionActionQuery    TransactionAction = "QUERY"
	TransactionActionComplete TransactionAction = "COMPLETE"
	TransactionActionVoid     TransactionAction = "VOID"
)

// TransactionRequest is the envelope every transaction CRUD caller submits.
type TransactionRequest struct {
	Action         TransactionAction  `json:"action" binding:"required"`
	ActorUserId    int                `json:"actor_user_id"`
	OrganizationId string             `json:"organization_id"`
	TransactionId  string             `json:"transaction_id"`
	Payload        *NewTransaction    `json:"payload"`
	Filter         *TransactionFilter `json:"filter"`
	IncludeDeleted bool               `json:"include_deleted"`
	VoidReason     string             `json:"void_reason"`
}

// TransactionResponseData mirrors the entity response shape with the
// transaction id surfaced alongside the record.
type TransactionResponseData struct {
	TransactionId string       `json:"transaction_id,omitempty"`
	Transaction   *Transaction `json:"transaction,omitempty"`
	Transactions  []*Transaction `json:"transactions,omitempty"`
}

// DispatchTransactionRequest routes one transaction envelope to the engine
// operation named by its action.
func DispatchTransactionRequest(ctx context.Context, req *TransactionRequest) *ApiResponse {
	action := string(req.Action)
	switch req.Action {
	case TransactionActionCreate:
		if req.Payload == nil {
			return errorResponse(action, NewApiError(ErrCodeValidation, "CREATE requires a payload with header and lines"))
		}
		txn, err := CreateTransaction(ctx, req.OrganizationId, req.ActorUserId, req.Payload)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, &TransactionResponseData{TransactionId: txn.ID.String(), Transaction: txn})

	case TransactionActionRead:
		if req.TransactionId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "READ requires transaction_id"))
		}
		txn, err := GetTransaction(ctx, req.OrganizationId, req.ActorUserId, req.TransactionId, req.IncludeDeleted)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, &TransactionResponseData{TransactionId: txn.ID.String(), Transaction: txn})

	case TransactionActionQuery:
		filter := TransactionFilter{}
		if req.Filter != nil {
			filter = *req.Filter
		}
		if req.IncludeDeleted {
			filter.IncludeDeleted = true
		}
		txns, err := QueryTransactions(ctx, req.OrganizationId, req.ActorUserId, filter)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, &TransactionResponseData{Transactions: txns})

	case TransactionActionComplete:
		if req.TransactionId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "COMPLETE requires transaction_id"))
		}
		txn, err := CompleteTransaction(ctx, req.OrganizationId, req.ActorUserId, req.TransactionId)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, &TransactionResponseData{TransactionId: txn.ID.String(), Transaction: txn})

	case TransactionActionVoid:
		if req.TransactionId == "" {
			return errorResponse(action, NewApiError(ErrCodeValidation, "VOID requires transaction_id"))
		}
		txn, err := VoidTransaction(ctx, req.OrganizationId, req.ActorUserId, req.TransactionId, req.VoidReason)
		if err != nil {
			return errorResponse(action, err)
		}
		return successResponse(action, &TransactionResponseData{TransactionId: txn.ID.String(), Transaction: txn})

	default:
		return errorResponse(action, NewApiError(ErrCodeValidation, "unknown transaction action: "+action))
	}
}
