package versions_test

import (
	"fmt"
	"testing"

	"epic_events/cmd/migration/versions"
	"epic_events/crm_api/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%v?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDb.Close() })

	require.NoError(t, schema.AutoMigrate(db))
	return db
}

func TestAutoMigrateCreatesCaseInsensitiveUniques(t *testing.T) {
	db := setupDb(t)

	require.NoError(t, db.Create(&schema.Company{Name: "Acme"}).Error)
	assert.Error(t, db.Create(&schema.Company{Name: "ACME"}).Error)

	require.NoError(t, db.Create(&schema.Client{FirstName: "Ada", LastName: "Lovelace", Email: "ada@acme.com", CompanyId: 1}).Error)
	assert.Error(t, db.Create(&schema.Client{FirstName: "Ada", LastName: "Lovelace", Email: "ADA@acme.com", CompanyId: 1}).Error)
}

func TestCaseInsensitiveUniques(t *testing.T) {
	db := setupDb(t)

	// Start from a database that predates the indexes.
	require.NoError(t, versions.Rollback_1_case_insensitive_uniques(db))
	require.NoError(t, db.Create(&schema.Company{Name: "Acme"}).Error)
	require.NoError(t, db.Create(&schema.Company{Name: "Globex"}).Error)

	require.NoError(t, versions.Migration_1_case_insensitive_uniques(db))
	// Running twice is a no-op.
	require.NoError(t, versions.Migration_1_case_insensitive_uniques(db))

	assert.Error(t, db.Create(&schema.Company{Name: "ACME"}).Error)

	require.NoError(t, versions.Rollback_1_case_insensitive_uniques(db))
	require.NoError(t, db.Create(&schema.Company{Name: "ACME"}).Error)
}
