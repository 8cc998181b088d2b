package lifecycle

import (
	"fmt"
	"log/slog"

	"epic_events/crm_api/schema"
	"epic_events/utils/logging"

	"gorm.io/gorm"
)

const (
	ClientEntity   = "client"
	ContractEntity = "contract"
	EventEntity    = "event"

	ClientActive     = "active"
	ClientInactive   = "inactive"
	ContractSigned   = "signed"
	ContractUnsigned = "unsigned"
)

// Transition is an automatic state change on a row, reported back to the caller so it
// can be published once the transaction commits.
type Transition struct {
	Entity   string
	EntityId uint
	From     string
	To       string
}

func (t Transition) String() string {
	return fmt.Sprintf("%v %d: %v -> %v", t.Entity, t.EntityId, t.From, t.To)
}

func clientState(active bool) string {
	if active {
		return ClientActive
	}
	return ClientInactive
}

func contractState(signed bool) string {
	if signed {
		return ContractSigned
	}
	return ContractUnsigned
}

// SyncClientActive sets is_active to whether the client has any contracts. It is called
// after every contract create and delete, so a second contract on an active client is a
// no-op and deleting the last one deactivates it. The client row stays locked until txn
// ends, so the count cannot race another contract change on the same client.
func SyncClientActive(txn *gorm.DB, clientId uint) ([]Transition, error) {
	client, err := schema.LockClient(clientId, txn)
	if err != nil {
		return nil, err
	}

	count, err := schema.CountRows(txn, &schema.Contract{}, "client_id = ?", clientId)
	if err != nil {
		return nil, err
	}

	active := count > 0
	if client.IsActive == active {
		return nil, nil
	}

	result := txn.Model(&schema.Client{}).Where("id = ?", clientId).Update("is_active", active)
	if result.Error != nil {
		slog.Error("sql error updating client is_active", "client_id", clientId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	transition := Transition{Entity: ClientEntity, EntityId: clientId, From: clientState(client.IsActive), To: clientState(active)}
	slog.Info("client state changed", "code", logging.LIFECYCLE, "client_id", clientId, "from", transition.From, "to", transition.To)

	return []Transition{transition}, nil
}

// SyncContractStatus marks the contract signed iff an event exists for it, under the
// same row lock discipline as SyncClientActive.
func SyncContractStatus(txn *gorm.DB, contractId uint) ([]Transition, error) {
	contract, err := schema.LockContract(contractId, txn)
	if err != nil {
		return nil, err
	}

	count, err := schema.CountRows(txn, &schema.Event{}, "contract_id = ?", contractId)
	if err != nil {
		return nil, err
	}

	signed := count > 0
	if contract.Status == signed {
		return nil, nil
	}

	result := txn.Model(&schema.Contract{}).Where("id = ?", contractId).Update("status", signed)
	if result.Error != nil {
		slog.Error("sql error updating contract status", "contract_id", contractId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	transition := Transition{Entity: ContractEntity, EntityId: contractId, From: contractState(contract.Status), To: contractState(signed)}
	slog.Info("contract state changed", "code", logging.LIFECYCLE, "contract_id", contractId, "from", transition.From, "to", transition.To)

	return []Transition{transition}, nil
}

func eventTransition(event *schema.Event, to schema.EventStatus) []Transition {
	if event.Status == to {
		return nil
	}
	from := event.Status
	event.Status = to
	slog.Info("event state changed", "code", logging.LIFECYCLE, "event_id", event.Id, "from", from.String(), "to", to.String())
	return []Transition{{Entity: EventEntity, EntityId: event.Id, From: from.String(), To: to.String()}}
}

// AssignSupportContact sets the support contact on the event and moves it to Begin. The
// caller persists the event.
func AssignSupportContact(event *schema.Event, supportUser schema.User) ([]Transition, error) {
	if supportUser.Team != schema.Support {
		return nil, invalid("support_contact", "user %v is not a member of the support team", supportUser.Email)
	}
	if !supportUser.IsActive {
		return nil, invalid("support_contact", "user %v is not active", supportUser.Email)
	}

	event.SupportContactId = &supportUser.Id
	event.SupportContact = nil
	return eventTransition(event, schema.Begin), nil
}

// SetEventStatus writes a status chosen by the support contact. NotAttributed is reserved
// for events without a support contact.
func SetEventStatus(event *schema.Event, status schema.EventStatus) ([]Transition, error) {
	if err := schema.CheckValidEventStatus(status); err != nil {
		return nil, invalid("status", "%v", err)
	}
	if event.SupportContactId == nil {
		return nil, invalid("status", "event %d has no support contact", event.Id)
	}
	if status == schema.NotAttributed {
		return nil, invalid("status", "an event with a support contact cannot be '%v'", schema.NotAttributed)
	}
	return eventTransition(event, status), nil
}
