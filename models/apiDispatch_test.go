package models_test

import (
	"context"
	"testing"

	"github.com/heraerp/universal_backend/models"
)

func TestDispatchEntityRequestValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.EntityRequest
		want models.ErrorCode
	}{
		{
			name: "unknown action",
			req:  models.EntityRequest{Action: "UPSERT", OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "create without payload",
			req:  models.EntityRequest{Action: models.EntityActionCreate, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "read without entity id",
			req:  models.EntityRequest{Action: models.EntityActionRead, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "update without entity id",
			req:  models.EntityRequest{Action: models.EntityActionUpdate, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "delete without entity id",
			req:  models.EntityRequest{Action: models.EntityActionDelete, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "create without organization",
			req: models.EntityRequest{
				Action:      models.EntityActionCreate,
				ActorUserId: 1,
				Entity: &models.NewEntity{
					EntityType: "customer",
					EntityName: "Jane",
					SmartCode:  "HERA.SALON.CRM.CUSTOMER.PROFILE.v1",
				},
			},
			want: models.ErrCodeOrgRequired,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := models.DispatchEntityRequest(ctx, &c.req)
			if resp.Success {
				t.Fatal("expected failure response")
			}
			if resp.Error != c.want {
				t.Fatalf("got error code %s, want %s", resp.Error, c.want)
			}
			if resp.Message == "" {
				t.Fatal("expected a message on failure")
			}
		})
	}
}

func TestDispatchTransactionRequestValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		req  models.TransactionRequest
		want models.ErrorCode
	}{
		{
			name: "unknown action",
			req:  models.TransactionRequest{Action: "DELETE", OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "create without payload",
			req:  models.TransactionRequest{Action: models.TransactionActionCreate, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "read without transaction id",
			req:  models.TransactionRequest{Action: models.TransactionActionRead, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "void without transaction id",
			req:  models.TransactionRequest{Action: models.TransactionActionVoid, OrganizationId: "org", ActorUserId: 1},
			want: models.ErrCodeValidation,
		},
		{
			name: "create without organization",
			req: models.TransactionRequest{
				Action:      models.TransactionActionCreate,
				ActorUserId: 1,
				Payload: &models.NewTransaction{
					TransactionType: "sale",
					SmartCode:       "HERA.SALON.SALE.TXN.RETAIL.v1",
				},
			},
			want: models.ErrCodeOrgRequired,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := models.DispatchTransactionRequest(ctx, &c.req)
			if resp.Success {
				t.Fatal("expected failure response")
			}
			if resp.Error != c.want {
				t.Fatalf("got error code %s, want %s", resp.Error, c.want)
			}
		})
	}
}
