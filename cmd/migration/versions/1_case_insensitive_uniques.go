package versions

import (
	"log"

	"epic_events/crm_api/schema"

	"gorm.io/gorm"
)

// Databases created before the indexes moved into schema.AutoMigrate get them here.
func Migration_1_case_insensitive_uniques(txn *gorm.DB) error {
	log.Println("adding case insensitive unique indexes")

	return schema.CreateLowerUniqueIndexes(txn)
}

func Rollback_1_case_insensitive_uniques(txn *gorm.DB) error {
	return schema.DropLowerUniqueIndexes(txn)
}
