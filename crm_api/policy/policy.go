package policy

import (
	"errors"
	"fmt"

	"epic_events/crm_api/schema"
)

type Action string

const (
	List     Action = "list"
	Retrieve Action = "retrieve"
	Create   Action = "create"
	Update   Action = "update"
	Destroy  Action = "destroy"
)

type Resource string

const (
	CompanyResource  Resource = "company"
	ClientResource   Resource = "client"
	ContractResource Resource = "contract"
	EventResource    Resource = "event"
	UserResource     Resource = "user"
)

// Actor is the resolved caller of a request. A nil *Actor is an unauthenticated caller.
type Actor struct {
	UserId uint
	Team   schema.UserTeam
}

func (a *Actor) is(userId *uint) bool {
	return a != nil && userId != nil && *userId == a.UserId
}

type predicate func(actor *Actor) error

func requireAuthenticated(actor *Actor) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	return nil
}

func requireTeam(teams ...schema.UserTeam) predicate {
	return func(actor *Actor) error {
		if err := requireAuthenticated(actor); err != nil {
			return err
		}
		for _, team := range teams {
			if actor.Team == team {
				return nil
			}
		}
		if len(teams) == 1 && teams[0] == schema.Management {
			return forbidden(ManagementOnly, "only members of the management team may perform this action")
		}
		return forbidden(WrongTeam, fmt.Sprintf("members of the %v team may not perform this action", actor.Team))
	}
}

var (
	anyAuthenticated = predicate(requireAuthenticated)
	salesOnly        = requireTeam(schema.Sales)
	managementOnly   = requireTeam(schema.Management)
	managementSales  = requireTeam(schema.Management, schema.Sales)
)

var rules = map[Resource]map[Action]predicate{
	CompanyResource: {
		List:     anyAuthenticated,
		Retrieve: anyAuthenticated,
		Create:   salesOnly,
		Update:   salesOnly,
		Destroy:  salesOnly,
	},
	ClientResource: {
		List:     anyAuthenticated,
		Retrieve: anyAuthenticated,
		Create:   salesOnly,
		Update:   managementSales,
		Destroy:  salesOnly,
	},
	ContractResource: {
		List:     anyAuthenticated,
		Retrieve: anyAuthenticated,
		Create:   salesOnly,
		Update:   managementSales,
		Destroy:  salesOnly,
	},
	EventResource: {
		List:     anyAuthenticated,
		Retrieve: anyAuthenticated,
		Create:   salesOnly,
		Update:   anyAuthenticated,
		Destroy:  salesOnly,
	},
	UserResource: {
		List:     anyAuthenticated,
		Retrieve: anyAuthenticated,
		Create:   managementOnly,
	},
}

// Authorize applies the blanket team rule for (action, resource). A nil return allows
// the request; ownership is checked separately once the target row is loaded.
func Authorize(actor *Actor, action Action, resource Resource) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}

	actions, ok := rules[resource]
	if !ok {
		return fmt.Errorf("%w: unknown resource '%v'", ErrNoRule, resource)
	}
	check, ok := actions[action]
	if !ok {
		return fmt.Errorf("%w: action '%v' is not defined for resource '%v'", ErrNoRule, action, resource)
	}

	return check(actor)
}

var ErrNoRule = errors.New("no policy rule")
