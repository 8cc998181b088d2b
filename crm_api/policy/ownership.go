package policy

import (
	"fmt"

	"epic_events/crm_api/schema"
)

// Ownership checks run after Authorize, on rows loaded inside the request transaction.

func CanModifyClient(actor *Actor, client schema.Client) error {
	if err := managementSales(actor); err != nil {
		return err
	}
	if actor.Team == schema.Management || actor.is(client.SalesContactId) {
		return nil
	}
	return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of client %d", actor.UserId, client.Id))
}

func CanReassignSalesContact(actor *Actor) error {
	return managementOnly(actor)
}

// ManagementOnlyField denies a request that sets field where the route itself is closed
// to management, e.g. the sales contact on client creation, which is always the creator.
func ManagementOnlyField(field string) error {
	return forbidden(ManagementOnly, fmt.Sprintf("'%v' can only be set by management on an existing record", field))
}

// CanCreateContract requires the actor to be the client's current sales contact. A client
// without a sales contact cannot receive contracts.
func CanCreateContract(actor *Actor, client schema.Client) error {
	if err := salesOnly(actor); err != nil {
		return err
	}
	if actor.is(client.SalesContactId) {
		return nil
	}
	return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of client %d", actor.UserId, client.Id))
}

func CanModifyContract(actor *Actor, contract schema.Contract) error {
	if err := managementSales(actor); err != nil {
		return err
	}
	if actor.Team == schema.Management || actor.is(&contract.SalesContactId) {
		return nil
	}
	return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of contract %d", actor.UserId, contract.Id))
}

func CanCreateEvent(actor *Actor, contract schema.Contract) error {
	if err := salesOnly(actor); err != nil {
		return err
	}
	if actor.is(&contract.SalesContactId) {
		return nil
	}
	return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of contract %d", actor.UserId, contract.Id))
}

// CanUpdateEvent: before a support contact is assigned the contract's sales contact owns
// the event, afterwards the support contact does. Management may always update.
func CanUpdateEvent(actor *Actor, event schema.Event, contract schema.Contract) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if actor.Team == schema.Management {
		return nil
	}

	if event.SupportContactId == nil {
		if actor.is(&contract.SalesContactId) {
			return nil
		}
		return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of contract %d", actor.UserId, contract.Id))
	}

	if actor.is(event.SupportContactId) {
		return nil
	}
	return forbidden(NotSupportContact, fmt.Sprintf("user %d is not the support contact of event %d", actor.UserId, event.Id))
}

func CanDestroyEvent(actor *Actor, contract schema.Contract) error {
	if err := salesOnly(actor); err != nil {
		return err
	}
	if actor.is(&contract.SalesContactId) {
		return nil
	}
	return forbidden(NotOwner, fmt.Sprintf("user %d is not the sales contact of contract %d", actor.UserId, contract.Id))
}

func CanAssignSupportContact(actor *Actor) error {
	return managementOnly(actor)
}

// CanChangeEventStatus only allows the assigned support contact, so an event without
// a support contact cannot have its status written by anyone.
func CanChangeEventStatus(actor *Actor, event schema.Event) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if actor.is(event.SupportContactId) {
		return nil
	}
	if event.SupportContactId == nil {
		return forbidden(NotSupportContact, fmt.Sprintf("event %d has no support contact, status cannot be changed", event.Id))
	}
	return forbidden(NotSupportContact, fmt.Sprintf("only the support contact of event %d may change its status", event.Id))
}
