package schema

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestForUpdateLocksRowsOnPostgres(t *testing.T) {
	db, err := gorm.Open(postgres.Open("host=localhost user=crm dbname=crm sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return forUpdate(tx).Where("id = ?", 7).First(&Client{})
	})
	assert.Contains(t, sql, "FOR UPDATE")
}

func TestLockHelpersOnSqlite(t *testing.T) {
	dsn := fmt.Sprintf("file:%v?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDb.Close() })

	require.NoError(t, AutoMigrate(db))

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return forUpdate(tx).Where("id = ?", 7).First(&Client{})
	})
	assert.NotContains(t, sql, "FOR UPDATE")

	require.NoError(t, db.Create(&Company{Name: "Acme"}).Error)
	client := Client{FirstName: "Ada", LastName: "Lovelace", Email: "ada@acme.com", CompanyId: 1}
	require.NoError(t, db.Create(&client).Error)
	contract := Contract{ClientId: client.Id, SalesContactId: 1, Amount: 10}
	require.NoError(t, db.Create(&contract).Error)

	err = db.Transaction(func(txn *gorm.DB) error {
		locked, err := LockClient(client.Id, txn)
		require.NoError(t, err)
		assert.Equal(t, "ada@acme.com", locked.Email)

		lockedContract, err := LockContract(contract.Id, txn)
		require.NoError(t, err)
		assert.Equal(t, client.Id, lockedContract.ClientId)

		_, err = LockClient(999, txn)
		assert.ErrorIs(t, err, ErrClientNotFound)
		_, err = LockContract(999, txn)
		assert.ErrorIs(t, err, ErrContractNotFound)
		return nil
	})
	require.NoError(t, err)
}
