package lifecycle_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"epic_events/crm_api/lifecycle"
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

type fixture struct {
	rep      schema.User
	support  schema.User
	company  schema.Company
	client   schema.Client
}

func newFixture(t *testing.T, db *gorm.DB) fixture {
	f := fixture{
		rep:     schema.User{Email: "rep@mail.com", FirstName: "Rep", LastName: "Sales", Team: schema.Sales, IsActive: true},
		support: schema.User{Email: "support@mail.com", FirstName: "Sup", LastName: "Port", Team: schema.Support, IsActive: true},
		company: schema.Company{Name: "Acme"},
	}
	require.NoError(t, db.Create(&f.rep).Error)
	require.NoError(t, db.Create(&f.support).Error)
	require.NoError(t, db.Create(&f.company).Error)

	f.client = schema.Client{FirstName: "Ada", LastName: "Lovelace", Email: "ada@acme.com", CompanyId: f.company.Id, SalesContactId: &f.rep.Id}
	require.NoError(t, db.Create(&f.client).Error)

	return f
}

func (f *fixture) addContract(t *testing.T, db *gorm.DB) schema.Contract {
	contract := schema.Contract{ClientId: f.client.Id, SalesContactId: f.rep.Id, Amount: 100}
	require.NoError(t, db.Create(&contract).Error)
	return contract
}

func reloadClient(t *testing.T, db *gorm.DB, id uint) schema.Client {
	client, err := schema.GetClient(id, db)
	require.NoError(t, err)
	return client
}

func reloadContract(t *testing.T, db *gorm.DB, id uint) schema.Contract {
	contract, err := schema.GetContract(id, db)
	require.NoError(t, err)
	return contract
}

func TestClientActivation(t *testing.T) {
	db := setupDb(t)
	f := newFixture(t, db)

	assert.False(t, reloadClient(t, db, f.client.Id).IsActive)

	first := f.addContract(t, db)
	transitions, err := lifecycle.SyncClientActive(db, f.client.Id)
	require.NoError(t, err)
	assert.Equal(t, []lifecycle.Transition{{Entity: "client", EntityId: f.client.Id, From: "inactive", To: "active"}}, transitions)
	assert.True(t, reloadClient(t, db, f.client.Id).IsActive)

	second := f.addContract(t, db)
	transitions, err = lifecycle.SyncClientActive(db, f.client.Id)
	require.NoError(t, err)
	assert.Empty(t, transitions)

	require.NoError(t, db.Delete(&schema.Contract{}, first.Id).Error)
	transitions, err = lifecycle.SyncClientActive(db, f.client.Id)
	require.NoError(t, err)
	assert.Empty(t, transitions)
	assert.True(t, reloadClient(t, db, f.client.Id).IsActive)

	require.NoError(t, db.Delete(&schema.Contract{}, second.Id).Error)
	transitions, err = lifecycle.SyncClientActive(db, f.client.Id)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "inactive", transitions[0].To)
	assert.False(t, reloadClient(t, db, f.client.Id).IsActive)
}

func TestSyncMissingRows(t *testing.T) {
	db := setupDb(t)

	_, err := lifecycle.SyncClientActive(db, 99)
	assert.ErrorIs(t, err, schema.ErrClientNotFound)

	_, err = lifecycle.SyncContractStatus(db, 99)
	assert.ErrorIs(t, err, schema.ErrContractNotFound)
}

func TestContractSigning(t *testing.T) {
	db := setupDb(t)
	f := newFixture(t, db)
	contract := f.addContract(t, db)

	assert.False(t, reloadContract(t, db, contract.Id).Status)

	event := schema.Event{ContractId: contract.Id, Status: schema.NotAttributed}
	require.NoError(t, db.Create(&event).Error)

	transitions, err := lifecycle.SyncContractStatus(db, contract.Id)
	require.NoError(t, err)
	assert.Equal(t, []lifecycle.Transition{{Entity: "contract", EntityId: contract.Id, From: "unsigned", To: "signed"}}, transitions)
	assert.True(t, reloadContract(t, db, contract.Id).Status)

	require.NoError(t, db.Delete(&schema.Event{}, event.Id).Error)
	transitions, err = lifecycle.SyncContractStatus(db, contract.Id)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "unsigned", transitions[0].To)
	assert.False(t, reloadContract(t, db, contract.Id).Status)
}

func TestEventStatusMachine(t *testing.T) {
	event := schema.Event{Id: 7, Status: schema.NotAttributed}

	_, err := lifecycle.SetEventStatus(&event, schema.InProgress)
	assert.ErrorIs(t, err, lifecycle.ErrValidation)

	manager := schema.User{Id: 1, Email: "boss@mail.com", Team: schema.Management, IsActive: true}
	_, err = lifecycle.AssignSupportContact(&event, manager)
	assert.ErrorIs(t, err, lifecycle.ErrValidation)
	assert.Nil(t, event.SupportContactId)

	support := schema.User{Id: 2, Email: "support@mail.com", Team: schema.Support, IsActive: true}
	transitions, err := lifecycle.AssignSupportContact(&event, support)
	require.NoError(t, err)
	assert.Equal(t, []lifecycle.Transition{{Entity: "event", EntityId: 7, From: "not_attributed", To: "begin"}}, transitions)
	assert.Equal(t, schema.Begin, event.Status)
	assert.Equal(t, support.Id, *event.SupportContactId)

	transitions, err = lifecycle.SetEventStatus(&event, schema.InProgress)
	require.NoError(t, err)
	assert.Len(t, transitions, 1)
	assert.Equal(t, schema.InProgress, event.Status)

	transitions, err = lifecycle.SetEventStatus(&event, schema.InProgress)
	require.NoError(t, err)
	assert.Empty(t, transitions)

	_, err = lifecycle.SetEventStatus(&event, schema.NotAttributed)
	var verr *lifecycle.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)

	_, err = lifecycle.SetEventStatus(&event, schema.EventStatus(9))
	assert.ErrorIs(t, err, lifecycle.ErrValidation)

	transitions, err = lifecycle.SetEventStatus(&event, schema.Ended)
	require.NoError(t, err)
	assert.Equal(t, "ended", transitions[0].To)
}

func TestDeletionGuards(t *testing.T) {
	db := setupDb(t)
	f := newFixture(t, db)

	assert.ErrorIs(t, lifecycle.CheckCompanyDeletable(db, f.company.Id), lifecycle.ErrConflict)

	assert.NoError(t, lifecycle.CheckClientDeletable(db, f.client.Id))
	contract := f.addContract(t, db)
	assert.ErrorIs(t, lifecycle.CheckClientDeletable(db, f.client.Id), lifecycle.ErrConflict)

	assert.NoError(t, lifecycle.CheckContractDeletable(db, contract.Id))
	assert.NoError(t, lifecycle.CheckEventUnique(db, contract.Id))

	require.NoError(t, db.Create(&schema.Event{ContractId: contract.Id, Status: schema.NotAttributed}).Error)
	err := lifecycle.CheckContractDeletable(db, contract.Id)
	assert.ErrorIs(t, err, lifecycle.ErrConflict)
	assert.Contains(t, err.Error(), "event")
	assert.ErrorIs(t, lifecycle.CheckEventUnique(db, contract.Id), lifecycle.ErrConflict)

	empty := schema.Company{Name: "Empty"}
	require.NoError(t, db.Create(&empty).Error)
	assert.NoError(t, lifecycle.CheckCompanyDeletable(db, empty.Id))
}

func TestFieldValidation(t *testing.T) {
	assert.NoError(t, lifecycle.ValidatePhone("phone", ""))
	assert.NoError(t, lifecycle.ValidatePhone("phone", "0612345678"))
	assert.ErrorIs(t, lifecycle.ValidatePhone("phone", "123"), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidatePhone("phone", "1234567890123456"), lifecycle.ErrValidation)

	err := lifecycle.ValidatePhone("mobile", "06-12-34")
	var verr *lifecycle.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mobile", verr.Field)

	assert.NoError(t, lifecycle.ValidateEmail("email", "ada@acme.com"))
	assert.ErrorIs(t, lifecycle.ValidateEmail("email", "not an email"), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateEmail("email", "Ada <ada@acme.com>"), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateEmail("email", ""), lifecycle.ErrValidation)

	assert.NoError(t, lifecycle.ValidateAmount(0))
	assert.NoError(t, lifecycle.ValidateAmount(1500.5))
	assert.NoError(t, lifecycle.ValidateAmount(0.1+0.2))
	assert.NoError(t, lifecycle.ValidateAmount(99999999.99))
	assert.ErrorIs(t, lifecycle.ValidateAmount(-1), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateAmount(1e8), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateAmount(10.005), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateAmount(99999999.999), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateAmount(math.NaN()), lifecycle.ErrValidation)
	assert.ErrorIs(t, lifecycle.ValidateAttendees(-1), lifecycle.ErrValidation)

	// Lengths are counted in characters like the varchar columns, not in bytes.
	assert.NoError(t, lifecycle.ValidateName("last_name", "ÉéÉéÉéÉéÉéÉéÉé"))
	assert.NoError(t, lifecycle.ValidateName("last_name", strings.Repeat("é", 25)))
	assert.ErrorIs(t, lifecycle.ValidateName("last_name", strings.Repeat("é", 26)), lifecycle.ErrValidation)

	assert.ErrorIs(t, lifecycle.ValidateClient(schema.Client{FirstName: "A", LastName: "", Email: "a@b.com"}), lifecycle.ErrValidation)
}

func TestUniqueness(t *testing.T) {
	db := setupDb(t)
	f := newFixture(t, db)

	err := lifecycle.ValidateCompanyName(db, "ACME", 0)
	assert.ErrorIs(t, err, lifecycle.ErrConflict)
	assert.Contains(t, err.Error(), "ACME")

	assert.NoError(t, lifecycle.ValidateCompanyName(db, "Acme", f.company.Id))
	assert.NoError(t, lifecycle.ValidateCompanyName(db, "Globex", 0))
	assert.ErrorIs(t, lifecycle.ValidateCompanyName(db, " ", 0), lifecycle.ErrValidation)

	assert.ErrorIs(t, lifecycle.ValidateClientEmail(db, "ada@acme.com", 0), lifecycle.ErrConflict)
	assert.NoError(t, lifecycle.ValidateClientEmail(db, "ada@acme.com", f.client.Id))
	assert.NoError(t, lifecycle.ValidateClientEmail(db, "grace@acme.com", 0))
}
