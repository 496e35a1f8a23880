package models

import (
	"log"

	"github.com/heraerp/universal_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Organization{}, &OrganizationUser{},
		&User{},
		&Entity{}, &DynamicData{}, &Relationship{},
		&Transaction{}, &TransactionLine{},
		&AuditOutboxRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
