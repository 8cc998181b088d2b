package lifecycle

import (
	"log/slog"

	"epic_events/crm_api/schema"

	"gorm.io/gorm"
)

// Deletion guards run inside the delete transaction, before the row is removed.

func CheckCompanyDeletable(txn *gorm.DB, companyId uint) error {
	count, err := schema.CountRows(txn, &schema.Client{}, "company_id = ?", companyId)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflict("company %d cannot be deleted, it is referenced by %d client(s)", companyId, count)
	}
	return nil
}

func CheckClientDeletable(txn *gorm.DB, clientId uint) error {
	count, err := schema.CountRows(txn, &schema.Contract{}, "client_id = ?", clientId)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflict("client %d cannot be deleted, it is referenced by %d contract(s)", clientId, count)
	}
	return nil
}

func CheckContractDeletable(txn *gorm.DB, contractId uint) error {
	var event schema.Event
	result := txn.Limit(1).Find(&event, "contract_id = ?", contractId)
	if result.Error != nil {
		slog.Error("sql error checking for contract event", "contract_id", contractId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected > 0 {
		return conflict("contract %d cannot be deleted, it is referenced by event %d", contractId, event.Id)
	}
	return nil
}

// CheckEventUnique enforces at most one event per contract.
func CheckEventUnique(txn *gorm.DB, contractId uint) error {
	count, err := schema.CountRows(txn, &schema.Event{}, "contract_id = ?", contractId)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflict("contract %d already has an event", contractId)
	}
	return nil
}
