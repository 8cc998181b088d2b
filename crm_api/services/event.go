package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/lifecycle"
	"epic_events/crm_api/policy"
	"epic_events/crm_api/schema"
	"epic_events/utils"
	"epic_events/utils/logging"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type EventService struct {
	db       *gorm.DB
	notifier transitionDispatcher
}

// Routes serves the flat /events collection.
func (s *EventService) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.EventResource, policy.List)).Get("/", s.List)
	r.With(auth.Policy(policy.EventResource, policy.Retrieve)).Get("/{event_id}", s.Retrieve)

	return r
}

// ContractRoutes serves /contracts/{contract_id}/events.
func (s *EventService) ContractRoutes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.EventResource, policy.List)).Get("/", s.List)
	r.With(auth.Policy(policy.EventResource, policy.Create)).Post("/", s.Create)

	r.Route("/{event_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.EventResource, policy.Retrieve)).Get("/", s.Retrieve)
		r.With(auth.Policy(policy.EventResource, policy.Update)).Put("/", s.Update)
		r.With(auth.Policy(policy.EventResource, policy.Update)).Patch("/", s.Update)
		r.With(auth.Policy(policy.EventResource, policy.Destroy)).Delete("/", s.Delete)
	})

	return r
}

type eventRequest struct {
	Attendees      *int                `json:"attendees"`
	Note           *string             `json:"note"`
	EventDate      *Date               `json:"event_date"`
	Status         *schema.EventStatus `json:"status"`
	SupportContact *string             `json:"support_contact"`
}

func (req *eventRequest) apply(event *schema.Event) error {
	if req.Attendees != nil {
		if err := lifecycle.ValidateAttendees(*req.Attendees); err != nil {
			return err
		}
		event.Attendees = *req.Attendees
	}
	if req.Note != nil {
		event.Note = *req.Note
	}
	if req.EventDate != nil {
		event.EventDate = req.EventDate.ptr()
	}
	return nil
}

// loadEvent resolves {event_id} and the contract that owns it, scoped to {contract_id}
// when the route has one.
func loadEvent(r *http.Request, txn *gorm.DB) (schema.Event, schema.Contract, error) {
	contractId, err := optionalPathId(r, "contract_id")
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}
	eventId, err := pathId(r, "event_id")
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	var event schema.Event
	if contractId == nil {
		event, err = schema.GetEvent(eventId, txn)
	} else {
		if _, err := schema.GetContract(*contractId, txn); err != nil {
			return schema.Event{}, schema.Contract{}, err
		}
		event, err = schema.GetEventForContract(eventId, *contractId, txn)
	}
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	contract, err := schema.GetContract(event.ContractId, txn)
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	return event, contract, nil
}

// lockEvent is loadEvent for writes. The owning contract is locked before the event is
// read, so the event seen here cannot be deleted or created under the caller.
func lockEvent(r *http.Request, txn *gorm.DB) (schema.Event, schema.Contract, error) {
	loaded, _, err := loadEvent(r, txn)
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	contract, err := schema.LockContract(loaded.ContractId, txn)
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	event, err := schema.GetEventForContract(loaded.Id, contract.Id, txn)
	if err != nil {
		return schema.Event{}, schema.Contract{}, err
	}

	return event, contract, nil
}

// findSupportUser resolves a support contact given by email. Users outside the support
// team are reported as not found.
func findSupportUser(email string, txn *gorm.DB) (schema.User, error) {
	user, err := schema.GetUserByEmail(email, txn)
	if err != nil {
		return user, fmt.Errorf("support contact '%v': %w", email, err)
	}
	if user.Team != schema.Support {
		return user, fmt.Errorf("support contact '%v': %w", email, schema.ErrUserNotFound)
	}
	return user, nil
}

func (s *EventService) List(w http.ResponseWriter, r *http.Request) {
	contractId, err := optionalPathId(r, "contract_id")
	if err != nil {
		writeError(w, r, policy.EventResource, policy.List, err)
		return
	}
	if contractId == nil {
		contractId, err = utils.QueryId(r, "contract")
		if err != nil {
			writeError(w, r, policy.EventResource, policy.List, badRequest(err))
			return
		}
	} else if _, err := schema.GetContract(*contractId, s.db); err != nil {
		writeError(w, r, policy.EventResource, policy.List, err)
		return
	}

	query := s.db.Model(&schema.Event{})
	if contractId != nil {
		query = query.Where("contract_id = ?", *contractId)
	}

	status, err := parseQueryInt(r, "status")
	if err != nil {
		writeError(w, r, policy.EventResource, policy.List, err)
		return
	}
	if status != nil {
		if err := schema.CheckValidEventStatus(schema.EventStatus(*status)); err != nil {
			writeError(w, r, policy.EventResource, policy.List, badRequest(err))
			return
		}
		query = query.Where("status = ?", *status)
	}

	supportContact, err := utils.QueryId(r, "support_contact")
	if err != nil {
		writeError(w, r, policy.EventResource, policy.List, badRequest(err))
		return
	}
	if supportContact != nil {
		query = query.Where("support_contact_id = ?", *supportContact)
	}

	page := utils.ParsePagination(r)
	var events []schema.Event
	total, err := paginate(query, page, &events)
	if err != nil {
		writeError(w, r, policy.EventResource, policy.List, err)
		return
	}

	utils.WritePage(w, r, convertAll(events, convertToEventInfo), total, page)
}

func (s *EventService) Retrieve(w http.ResponseWriter, r *http.Request) {
	event, _, err := loadEvent(r, s.db)
	if err != nil {
		writeError(w, r, policy.EventResource, policy.Retrieve, err)
		return
	}

	utils.WriteJsonResponse(w, r, convertToEventInfo(event))
}

func (s *EventService) Create(w http.ResponseWriter, r *http.Request) {
	contractId, err := pathId(r, "contract_id")
	if err != nil {
		writeError(w, r, policy.EventResource, policy.Create, err)
		return
	}

	var params eventRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var event schema.Event
	var transitions []lifecycle.Transition
	err = runTxn(s.db, policy.EventResource, policy.Create, func(txn *gorm.DB) error {
		contract, err := schema.LockContract(contractId, txn)
		if err != nil {
			return err
		}

		if err := policy.CanCreateEvent(actor, contract); err != nil {
			return err
		}

		if params.SupportContact != nil {
			return policy.ManagementOnlyField("support_contact")
		}
		if params.Status != nil {
			return &lifecycle.ValidationError{Field: "status", Message: "a new event has no support contact and starts as 'not attributed'"}
		}

		event = schema.Event{ContractId: contract.Id, Status: schema.NotAttributed}

		if err := params.apply(&event); err != nil {
			return err
		}

		if err := lifecycle.CheckEventUnique(txn, contract.Id); err != nil {
			return err
		}

		if result := txn.Create(&event); result.Error != nil {
			return createError("event", result.Error)
		}

		transitions, err = lifecycle.SyncContractStatus(txn, contract.Id)
		return err
	})
	if err != nil {
		writeError(w, r, policy.EventResource, policy.Create, err)
		return
	}

	slog.Info("event created", "code", logging.EVENT, "event_id", event.Id, "contract_id", contractId, "actor_id", actor.UserId)
	s.notifier.dispatch(actor, transitions)

	utils.WriteCreated(w, r, convertToEventInfo(event))
}

func (s *EventService) Update(w http.ResponseWriter, r *http.Request) {
	var params eventRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var event schema.Event
	var transitions []lifecycle.Transition
	err := runTxn(s.db, policy.EventResource, policy.Update, func(txn *gorm.DB) error {
		var contract schema.Contract
		var err error
		event, contract, err = lockEvent(r, txn)
		if err != nil {
			return err
		}

		if err := policy.CanUpdateEvent(actor, event, contract); err != nil {
			return err
		}

		// Status rights are checked against the event as stored, before any reassignment
		// in the same request.
		if params.Status != nil {
			if err := policy.CanChangeEventStatus(actor, event); err != nil {
				return err
			}
		}

		if params.SupportContact != nil {
			if err := policy.CanAssignSupportContact(actor); err != nil {
				return err
			}
			support, err := findSupportUser(strings.TrimSpace(*params.SupportContact), txn)
			if err != nil {
				return err
			}
			assigned, err := lifecycle.AssignSupportContact(&event, support)
			if err != nil {
				return err
			}
			transitions = append(transitions, assigned...)
		}

		if params.Status != nil {
			changed, err := lifecycle.SetEventStatus(&event, *params.Status)
			if err != nil {
				return err
			}
			transitions = append(transitions, changed...)
		}

		if err := params.apply(&event); err != nil {
			return err
		}

		return saveColumns(txn, "event", schema.ErrEventNotFound, &event,
			"support_contact_id", "status", "attendees", "note", "event_date")
	})
	if err != nil {
		writeError(w, r, policy.EventResource, policy.Update, err)
		return
	}

	slog.Info("event updated", "code", logging.EVENT, "event_id", event.Id, "status", event.Status.String(), "actor_id", actor.UserId)
	s.notifier.dispatch(actor, transitions)

	utils.WriteAccepted(w, r, convertToEventInfo(event))
}

func (s *EventService) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)

	var event schema.Event
	var transitions []lifecycle.Transition
	err := runTxn(s.db, policy.EventResource, policy.Destroy, func(txn *gorm.DB) error {
		var contract schema.Contract
		var err error
		event, contract, err = lockEvent(r, txn)
		if err != nil {
			return err
		}

		if err := policy.CanDestroyEvent(actor, contract); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Event{}, event.Id); result.Error != nil {
			return deleteError("event", result.Error)
		}

		transitions, err = lifecycle.SyncContractStatus(txn, contract.Id)
		return err
	})
	if err != nil {
		writeError(w, r, policy.EventResource, policy.Destroy, err)
		return
	}

	slog.Info("event deleted", "code", logging.EVENT, "event_id", event.Id, "contract_id", event.ContractId, "actor_id", actor.UserId)
	s.notifier.dispatch(actor, transitions)

	utils.WriteNoContent(w)
}
