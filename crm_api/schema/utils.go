package schema

import (
	"errors"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrCompanyNotFound  = errors.New("company not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrContractNotFound = errors.New("contract not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrDbAccessFailed   = errors.New("db access failed")
)

func first[T any](db *gorm.DB, notFound error, action string, query string, args ...interface{}) (T, error) {
	var row T

	result := db.Where(query, args...).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return row, notFound
		}
		slog.Error("sql error in "+action, "query", query, "args", args, "error", result.Error)
		return row, ErrDbAccessFailed
	}

	return row, nil
}

func GetUser(userId uint, db *gorm.DB) (User, error) {
	return first[User](db, ErrUserNotFound, "get user", "id = ?", userId)
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	return first[User](db, ErrUserNotFound, "get user by email", "lower(email) = ?", strings.ToLower(email))
}

func GetCompany(companyId uint, db *gorm.DB) (Company, error) {
	return first[Company](db, ErrCompanyNotFound, "get company", "id = ?", companyId)
}

func GetClient(clientId uint, db *gorm.DB) (Client, error) {
	return first[Client](db, ErrClientNotFound, "get client", "id = ?", clientId)
}

// GetClientInCompany reports ErrClientNotFound if the client exists but belongs to
// another company.
func GetClientInCompany(clientId, companyId uint, db *gorm.DB) (Client, error) {
	return first[Client](db, ErrClientNotFound, "get client in company", "id = ? AND company_id = ?", clientId, companyId)
}

// forUpdate takes a row lock on the selected rows until the transaction ends. Sqlite has
// no row locks and serializes writers instead, so the clause is dropped there.
func forUpdate(txn *gorm.DB) *gorm.DB {
	return txn.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockClient loads the client and holds its row until txn ends. Every write that reads
// or derives is_active goes through it so concurrent contract changes serialize.
func LockClient(clientId uint, txn *gorm.DB) (Client, error) {
	return first[Client](forUpdate(txn), ErrClientNotFound, "lock client", "id = ?", clientId)
}

func GetContract(contractId uint, db *gorm.DB) (Contract, error) {
	return first[Contract](db, ErrContractNotFound, "get contract", "id = ?", contractId)
}

func GetContractForClient(contractId, clientId uint, db *gorm.DB) (Contract, error) {
	return first[Contract](db, ErrContractNotFound, "get contract for client", "id = ? AND client_id = ?", contractId, clientId)
}

// LockContract is the contract counterpart of LockClient, guarding the derived status.
func LockContract(contractId uint, txn *gorm.DB) (Contract, error) {
	return first[Contract](forUpdate(txn), ErrContractNotFound, "lock contract", "id = ?", contractId)
}

func GetEvent(eventId uint, db *gorm.DB) (Event, error) {
	return first[Event](db, ErrEventNotFound, "get event", "id = ?", eventId)
}

func GetEventForContract(eventId, contractId uint, db *gorm.DB) (Event, error) {
	return first[Event](db, ErrEventNotFound, "get event for contract", "id = ? AND contract_id = ?", eventId, contractId)
}

func CountRows(db *gorm.DB, model interface{}, query string, args ...interface{}) (int64, error) {
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		slog.Error("sql error counting rows", "query", query, "error", err)
		return 0, ErrDbAccessFailed
	}
	return count, nil
}
