package models

import (
	"log"

	"github.com/sharmarakshya7/financial-rating-platform/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Dataset{}, &FinancialRecord{},
		&IngestionOutbox{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
