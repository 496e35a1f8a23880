package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/models"
	"github.com/heraerp/universal_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression coverage for the universal contract: tenant isolation, balance
// enforcement, idempotent creates, void visibility and dynamic field upserts.
func TestUniversalContractRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "universal_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	ctx = utils.SetUsernameInContext(ctx, "test@local")

	owner, err := models.CreateUser(ctx, &models.NewUser{
		Username: "owner@test.local",
		Name:     "Owner",
		Password: "test-pass-123",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	org, err := models.CreateOrganization(ctx, owner.ID, &models.NewOrganization{
		Name: "Salon One",
		Code: "SALON1",
	})
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	orgID := org.ID.String()

	outsider, err := models.CreateUser(ctx, &models.NewUser{
		Username: "outsider@test.local",
		Name:     "Outsider",
		Password: "test-pass-456",
	})
	if err != nil {
		t.Fatalf("CreateUser (outsider): %v", err)
	}
	otherOrg, err := models.CreateOrganization(ctx, outsider.ID, &models.NewOrganization{
		Name: "Salon Two",
		Code: "SALON2",
	})
	if err != nil {
		t.Fatalf("CreateOrganization (other): %v", err)
	}
	otherOrgID := otherOrg.ID.String()

	code := "CUST-001"
	composed, err := models.CreateEntity(ctx, orgID, owner.ID, &models.NewEntity{
		EntityType: "customer",
		EntityName: "Jane Doe",
		EntityCode: &code,
		SmartCode:  "HERA.SALON.CRM.CUSTOMER.PROFILE.v1",
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	customer := composed.Entity
	customerID := customer.ID.String()

	t.Run("tenant isolation", func(t *testing.T) {
		if customer.OrganizationId != orgID {
			t.Fatalf("persisted organization_id = %s, want %s", customer.OrganizationId, orgID)
		}

		// The same id must be indistinguishable from a missing row in another tenant.
		_, err := models.GetEntity(ctx, otherOrgID, outsider.ID, customerID, models.EntityReadOptions{})
		var apiErr *models.ApiError
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeEntityNotFound {
			t.Fatalf("expected ENTITY_NOT_FOUND from other tenant, got %v", err)
		}

		entities, err := models.QueryEntities(ctx, otherOrgID, outsider.ID, models.EntityFilter{
			EntityTypes: []string{"customer"},
		})
		if err != nil {
			t.Fatalf("QueryEntities: %v", err)
		}
		for _, e := range entities {
			if e.ID.String() == customerID {
				t.Fatal("entity leaked into another tenant's query")
			}
		}

		// A non-member acting on the org is refused outright.
		_, err = models.CreateEntity(ctx, orgID, outsider.ID, &models.NewEntity{
			EntityType: "customer",
			EntityName: "Intruder",
			SmartCode:  "HERA.SALON.CRM.CUSTOMER.PROFILE.v1",
		})
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeNotAuthorized {
			t.Fatalf("expected NOT_AUTHORIZED for non-member, got %v", err)
		}
	})

	t.Run("duplicate entity code", func(t *testing.T) {
		dup := "CUST-001"
		_, err := models.CreateEntity(ctx, orgID, owner.ID, &models.NewEntity{
			EntityType: "customer",
			EntityName: "Jane Clone",
			EntityCode: &dup,
			SmartCode:  "HERA.SALON.CRM.CUSTOMER.PROFILE.v1",
		})
		var apiErr *models.ApiError
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeDuplicateCode {
			t.Fatalf("expected DUPLICATE_CODE, got %v", err)
		}
	})

	t.Run("balance rejection persists nothing", func(t *testing.T) {
		var headerBefore, lineBefore int64
		db.Model(&models.Transaction{}).Where("organization_id = ?", orgID).Count(&headerBefore)
		db.Model(&models.TransactionLine{}).Where("organization_id = ?", orgID).Count(&lineBefore)

		_, err := models.CreateTransaction(ctx, orgID, owner.ID, &models.NewTransaction{
			TransactionType: "sale",
			TotalAmount:     decimal.NewFromInt(100),
			SmartCode:       "HERA.SALON.SALE.TXN.RETAIL.v1",
			Lines: []*models.NewTransactionLine{
				{
					LineType:   models.LineTypeService,
					LineAmount: decimal.NewFromInt(90),
					SmartCode:  "HERA.SALON.SALE.LINE.SERVICE.v1",
				},
			},
		})
		var apiErr *models.ApiError
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeBalance {
			t.Fatalf("expected BALANCE error, got %v", err)
		}

		var headerAfter, lineAfter int64
		db.Model(&models.Transaction{}).Where("organization_id = ?", orgID).Count(&headerAfter)
		db.Model(&models.TransactionLine{}).Where("organization_id = ?", orgID).Count(&lineAfter)
		if headerAfter != headerBefore || lineAfter != lineBefore {
			t.Fatalf("rejected transaction persisted rows: headers %d->%d lines %d->%d",
				headerBefore, headerAfter, lineBefore, lineAfter)
		}
	})

	t.Run("create read roundtrip", func(t *testing.T) {
		created, err := models.CreateTransaction(ctx, orgID, owner.ID, &models.NewTransaction{
			TransactionType: "sale",
			TotalAmount:     decimal.NewFromInt(100),
			SmartCode:       "HERA.SALON.SALE.TXN.RETAIL.v1",
			Lines: []*models.NewTransactionLine{
				{
					LineType:   models.LineTypeService,
					LineAmount: decimal.NewFromInt(100),
					SmartCode:  "HERA.SALON.SALE.LINE.SERVICE.v1",
				},
			},
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		if created.TransactionCode == "" {
			t.Fatal("expected a generated transaction code")
		}

		got, err := models.GetTransaction(ctx, orgID, owner.ID, created.ID.String(), false)
		if err != nil {
			t.Fatalf("GetTransaction: %v", err)
		}
		if got.TotalAmount.Cmp(decimal.NewFromInt(100)) != 0 {
			t.Fatalf("total_amount = %s, want 100", got.TotalAmount.String())
		}
		if len(got.Lines) != 1 {
			t.Fatalf("lines = %d, want 1", len(got.Lines))
		}
	})

	t.Run("idempotent create", func(t *testing.T) {
		key := "order-retry-abc"
		mk := func() (*models.Transaction, error) {
			return models.CreateTransaction(ctx, orgID, owner.ID, &models.NewTransaction{
				TransactionType: "sale",
				TotalAmount:     decimal.NewFromInt(55),
				SmartCode:       "HERA.SALON.SALE.TXN.RETAIL.v1",
				IdempotencyKey:  &key,
				Lines: []*models.NewTransactionLine{
					{
						LineType:   models.LineTypeService,
						LineAmount: decimal.NewFromInt(55),
						SmartCode:  "HERA.SALON.SALE.LINE.SERVICE.v1",
					},
				},
			})
		}
		first, err := mk()
		if err != nil {
			t.Fatalf("CreateTransaction (first): %v", err)
		}
		second, err := mk()
		if err != nil {
			t.Fatalf("CreateTransaction (retry): %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("retry produced a second transaction: %s vs %s", first.ID, second.ID)
		}
		var count int64
		db.Model(&models.Transaction{}).
			Where("organization_id = ? AND idempotency_key = ?", orgID, key).
			Count(&count)
		if count != 1 {
			t.Fatalf("expected exactly 1 row for the key, got %d", count)
		}
	})

	t.Run("void and audit view", func(t *testing.T) {
		created, err := models.CreateTransaction(ctx, orgID, owner.ID, &models.NewTransaction{
			TransactionType: "sale",
			TotalAmount:     decimal.NewFromInt(30),
			SmartCode:       "HERA.SALON.SALE.TXN.RETAIL.v1",
			Lines: []*models.NewTransactionLine{
				{
					LineType:   models.LineTypeService,
					LineAmount: decimal.NewFromInt(30),
					SmartCode:  "HERA.SALON.SALE.LINE.SERVICE.v1",
				},
			},
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
		txnID := created.ID.String()

		voided, err := models.VoidTransaction(ctx, orgID, owner.ID, txnID, "entered twice")
		if err != nil {
			t.Fatalf("VoidTransaction: %v", err)
		}
		if voided.TransactionStatus != models.TransactionStatusVoided {
			t.Fatalf("status = %s, want VOIDED", voided.TransactionStatus)
		}
		if voided.VoidReason == nil || *voided.VoidReason != "entered twice" {
			t.Fatalf("void reason not stamped: %v", voided.VoidReason)
		}
		if voided.VoidedBy == nil || *voided.VoidedBy != owner.ID {
			t.Fatal("voided_by not stamped")
		}

		_, err = models.GetTransaction(ctx, orgID, owner.ID, txnID, false)
		var apiErr *models.ApiError
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeTransactionNotFound {
			t.Fatalf("expected TRANSACTION_NOT_FOUND in default view, got %v", err)
		}

		audit, err := models.GetTransaction(ctx, orgID, owner.ID, txnID, true)
		if err != nil {
			t.Fatalf("GetTransaction (audit view): %v", err)
		}
		if audit.TransactionStatus != models.TransactionStatusVoided {
			t.Fatalf("audit view status = %s, want VOIDED", audit.TransactionStatus)
		}
		if len(audit.Lines) != 1 {
			t.Fatalf("void removed lines: %d, want 1", len(audit.Lines))
		}

		// A second VOID returns the record unchanged.
		again, err := models.VoidTransaction(ctx, orgID, owner.ID, txnID, "again")
		if err != nil {
			t.Fatalf("second VoidTransaction: %v", err)
		}
		if *again.VoidReason != "entered twice" {
			t.Fatalf("second void overwrote reason: %q", *again.VoidReason)
		}
	})

	t.Run("dynamic field upsert", func(t *testing.T) {
		_, err := models.UpdateEntity(ctx, orgID, owner.ID, customerID, &models.UpdateEntityInput{
			Dynamic: map[string]*models.NewDynamicField{
				"lifetime_value": {
					Value:     "452.34",
					Type:      models.FieldTypeNumber,
					SmartCode: "HERA.SALON.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		if err != nil {
			t.Fatalf("UpdateEntity: %v", err)
		}

		got, err := models.GetEntity(ctx, orgID, owner.ID, customerID, models.EntityReadOptions{IncludeDynamic: true})
		if err != nil {
			t.Fatalf("GetEntity: %v", err)
		}
		var ltv *models.DynamicData
		for _, d := range got.DynamicData {
			if d.FieldName == "lifetime_value" {
				ltv = d
			}
		}
		if ltv == nil {
			t.Fatal("lifetime_value not returned")
		}
		num, ok := ltv.Value().(decimal.Decimal)
		if !ok || num.Cmp(decimal.RequireFromString("452.34")) != 0 {
			t.Fatalf("lifetime_value = %v, want 452.34", ltv.Value())
		}

		// Replacing the value keeps one authoritative row per field.
		_, err = models.UpdateEntity(ctx, orgID, owner.ID, customerID, &models.UpdateEntityInput{
			Dynamic: map[string]*models.NewDynamicField{
				"lifetime_value": {
					Value:     "500.00",
					Type:      models.FieldTypeNumber,
					SmartCode: "HERA.SALON.CRM.CUSTOMER.FIELD.v1",
				},
			},
		})
		if err != nil {
			t.Fatalf("UpdateEntity (replace): %v", err)
		}
		var count int64
		db.Model(&models.DynamicData{}).
			Where("entity_id = ? AND field_name = ?", customerID, "lifetime_value").
			Count(&count)
		if count != 1 {
			t.Fatalf("expected 1 row for the field, got %d", count)
		}
	})

	t.Run("status edges", func(t *testing.T) {
		updated, err := models.SetEntityStatus(ctx, orgID, owner.ID, customerID, "INACTIVE")
		if err != nil {
			t.Fatalf("SetEntityStatus: %v", err)
		}
		if updated.Status != models.EntityLifecycleInactive {
			t.Fatalf("status column = %s, want INACTIVE", updated.Status)
		}

		state, err := models.CurrentEntityStatus(ctx, orgID, owner.ID, customerID)
		if err != nil {
			t.Fatalf("CurrentEntityStatus: %v", err)
		}
		if state != "INACTIVE" {
			t.Fatalf("resolved status = %s, want INACTIVE", state)
		}

		// Exactly one active HAS_STATUS edge at a time; history stays.
		var active, total int64
		db.Model(&models.Relationship{}).
			Where("from_entity_id = ? AND relationship_type = ? AND is_active = ?", customerID, models.RelationshipTypeHasStatus, true).
			Count(&active)
		db.Model(&models.Relationship{}).
			Where("from_entity_id = ? AND relationship_type = ?", customerID, models.RelationshipTypeHasStatus).
			Count(&total)
		if active != 1 {
			t.Fatalf("active HAS_STATUS edges = %d, want 1", active)
		}
		if total < 1 {
			t.Fatalf("status history missing, total edges = %d", total)
		}

		// Archived is terminal for the lifecycle workflow.
		if _, err := models.SetEntityStatus(ctx, orgID, owner.ID, customerID, "ARCHIVED"); err != nil {
			t.Fatalf("SetEntityStatus (archive): %v", err)
		}
		_, err = models.SetEntityStatus(ctx, orgID, owner.ID, customerID, "ACTIVE")
		var apiErr *models.ApiError
		if !errors.As(err, &apiErr) || apiErr.Code != models.ErrCodeGovernance {
			t.Fatalf("expected GOVERNANCE for archived -> active, got %v", err)
		}
	})

	t.Run("audit outbox rows", func(t *testing.T) {
		var count int64
		db.Model(&models.AuditOutboxRecord{}).
			Where("organization_id = ? AND reference_type = ?", orgID, models.AuditReferenceTypeTransaction).
			Count(&count)
		if count == 0 {
			t.Fatal("expected audit outbox rows for transaction mutations")
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("universal-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("universal-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=universal_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
