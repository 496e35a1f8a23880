// seed-admin creates or updates the bootstrap platform user and, when no
// organization exists yet, a first organization owned by that user.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/heraerp/universal_backend/config"
	"github.com/heraerp/universal_backend/models"
	"github.com/heraerp/universal_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "universalAdmin"
	adminName     = "Universal Admin"
	defaultOrg    = "Default Organization"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, adminUsername)
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashedBytes, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashed := string(hashedBytes)

	var admin models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).First(&admin).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		admin = models.User{
			Username: adminUsername,
			Name:     adminName,
			Password: hashed,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (id=%d)\n", adminUsername, admin.ID)
	} else {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
			"password":  hashed,
			"name":      adminName,
			"is_active": utils.NewTrue(),
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated admin user: username=%q (id=%d)\n", adminUsername, admin.ID)
	}

	var orgCount int64
	if err := db.WithContext(ctx).Model(&models.Organization{}).Count(&orgCount).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to count organizations: %v\n", err)
		os.Exit(1)
	}
	if orgCount > 0 {
		return
	}

	org, err := models.CreateOrganization(ctx, admin.ID, &models.NewOrganization{
		Name: defaultOrg,
		Code: "DEFAULT",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create default organization: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created organization %q (id=%s) owned by %q\n", org.Name, org.ID, adminUsername)
}
