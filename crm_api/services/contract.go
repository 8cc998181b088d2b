package services

import (
	"log/slog"
	"net/http"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/lifecycle"
	"epic_events/crm_api/policy"
	"epic_events/crm_api/schema"
	"epic_events/utils"
	"epic_events/utils/logging"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type ContractService struct {
	db       *gorm.DB
	notifier transitionDispatcher
	events   *EventService
}

// Routes serves the flat /contracts collection.
func (s *ContractService) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.ContractResource, policy.List)).Get("/", s.List)

	r.Route("/{contract_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.ContractResource, policy.Retrieve)).Get("/", s.Retrieve)

		r.Mount("/events", s.events.ContractRoutes())
	})

	return r
}

// ClientRoutes serves /clients/{client_id}/contracts.
func (s *ContractService) ClientRoutes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.ContractResource, policy.List)).Get("/", s.List)
	r.With(auth.Policy(policy.ContractResource, policy.Create)).Post("/", s.Create)

	r.Route("/{contract_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.ContractResource, policy.Retrieve)).Get("/", s.Retrieve)
		r.With(auth.Policy(policy.ContractResource, policy.Update)).Put("/", s.Update)
		r.With(auth.Policy(policy.ContractResource, policy.Update)).Patch("/", s.Update)
		r.With(auth.Policy(policy.ContractResource, policy.Destroy)).Delete("/", s.Delete)
	})

	return r
}

type contractRequest struct {
	Amount     *float64 `json:"amount"`
	PaymentDue *Date    `json:"payment_due"`
	Status     *bool    `json:"status"`
}

func loadContract(r *http.Request, txn *gorm.DB) (schema.Contract, error) {
	clientId, err := optionalPathId(r, "client_id")
	if err != nil {
		return schema.Contract{}, err
	}
	contractId, err := pathId(r, "contract_id")
	if err != nil {
		return schema.Contract{}, err
	}

	if clientId == nil {
		return schema.GetContract(contractId, txn)
	}
	if _, err := schema.GetClient(*clientId, txn); err != nil {
		return schema.Contract{}, err
	}
	return schema.GetContractForClient(contractId, *clientId, txn)
}

func (s *ContractService) List(w http.ResponseWriter, r *http.Request) {
	clientId, err := optionalPathId(r, "client_id")
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.List, err)
		return
	}
	if clientId == nil {
		clientId, err = utils.QueryId(r, "client")
		if err != nil {
			writeError(w, r, policy.ContractResource, policy.List, badRequest(err))
			return
		}
	} else if _, err := schema.GetClient(*clientId, s.db); err != nil {
		writeError(w, r, policy.ContractResource, policy.List, err)
		return
	}

	query := s.db.Model(&schema.Contract{})
	if clientId != nil {
		query = query.Where("client_id = ?", *clientId)
	}

	status, err := utils.QueryBool(r, "status")
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.List, badRequest(err))
		return
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	salesContact, err := utils.QueryId(r, "sales_contact")
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.List, badRequest(err))
		return
	}
	if salesContact != nil {
		query = query.Where("sales_contact_id = ?", *salesContact)
	}

	page := utils.ParsePagination(r)
	var contracts []schema.Contract
	total, err := paginate(query, page, &contracts)
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.List, err)
		return
	}

	utils.WritePage(w, r, convertAll(contracts, convertToContractInfo), total, page)
}

func (s *ContractService) Retrieve(w http.ResponseWriter, r *http.Request) {
	contract, err := loadContract(r, s.db)
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.Retrieve, err)
		return
	}

	utils.WriteJsonResponse(w, r, convertToContractInfo(contract))
}

func (s *ContractService) Create(w http.ResponseWriter, r *http.Request) {
	clientId, err := pathId(r, "client_id")
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.Create, err)
		return
	}

	var params contractRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var contract schema.Contract
	var transitions []lifecycle.Transition
	err = runTxn(s.db, policy.ContractResource, policy.Create, func(txn *gorm.DB) error {
		client, err := schema.LockClient(clientId, txn)
		if err != nil {
			return err
		}

		if err := policy.CanCreateContract(actor, client); err != nil {
			return err
		}

		if params.Status != nil {
			return lifecycle.RejectDerivedField("status")
		}
		if params.Amount == nil {
			return &lifecycle.ValidationError{Field: "amount", Message: "this field is required"}
		}
		if err := lifecycle.ValidateAmount(*params.Amount); err != nil {
			return err
		}

		contract = schema.Contract{
			ClientId:       client.Id,
			SalesContactId: *client.SalesContactId,
			Amount:         *params.Amount,
			PaymentDue:     params.PaymentDue.ptr(),
		}
		if result := txn.Create(&contract); result.Error != nil {
			return createError("contract", result.Error)
		}

		transitions, err = lifecycle.SyncClientActive(txn, client.Id)
		return err
	})
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.Create, err)
		return
	}

	slog.Info("contract created", "code", logging.CONTRACT, "contract_id", contract.Id, "client_id", clientId, "actor_id", actor.UserId)
	s.notifier.dispatch(actor, transitions)

	utils.WriteCreated(w, r, convertToContractInfo(contract))
}

func (s *ContractService) Update(w http.ResponseWriter, r *http.Request) {
	var params contractRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var contract schema.Contract
	err := runTxn(s.db, policy.ContractResource, policy.Update, func(txn *gorm.DB) error {
		loaded, err := loadContract(r, txn)
		if err != nil {
			return err
		}
		contract, err = schema.LockContract(loaded.Id, txn)
		if err != nil {
			return err
		}

		if err := policy.CanModifyContract(actor, contract); err != nil {
			return err
		}

		if params.Status != nil {
			return lifecycle.RejectDerivedField("status")
		}
		if params.Amount != nil {
			if err := lifecycle.ValidateAmount(*params.Amount); err != nil {
				return err
			}
			contract.Amount = *params.Amount
		}
		if params.PaymentDue != nil {
			contract.PaymentDue = params.PaymentDue.ptr()
		}

		return saveColumns(txn, "contract", schema.ErrContractNotFound, &contract, "amount", "payment_due")
	})
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.Update, err)
		return
	}

	slog.Info("contract updated", "code", logging.CONTRACT, "contract_id", contract.Id, "actor_id", actor.UserId)

	utils.WriteAccepted(w, r, convertToContractInfo(contract))
}

func (s *ContractService) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)

	var contract schema.Contract
	var transitions []lifecycle.Transition
	err := runTxn(s.db, policy.ContractResource, policy.Destroy, func(txn *gorm.DB) error {
		var err error
		contract, err = loadContract(r, txn)
		if err != nil {
			return err
		}

		if err := policy.CanModifyContract(actor, contract); err != nil {
			return err
		}

		// Held until commit so a concurrent delete of the client's other contract
		// counts what this one leaves behind.
		if _, err := schema.LockClient(contract.ClientId, txn); err != nil {
			return err
		}
		if _, err := schema.LockContract(contract.Id, txn); err != nil {
			return err
		}

		if err := lifecycle.CheckContractDeletable(txn, contract.Id); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Contract{}, contract.Id); result.Error != nil {
			return deleteError("contract", result.Error)
		}

		transitions, err = lifecycle.SyncClientActive(txn, contract.ClientId)
		return err
	})
	if err != nil {
		writeError(w, r, policy.ContractResource, policy.Destroy, err)
		return
	}

	slog.Info("contract deleted", "code", logging.CONTRACT, "contract_id", contract.Id, "client_id", contract.ClientId, "actor_id", actor.UserId)
	s.notifier.dispatch(actor, transitions)

	utils.WriteNoContent(w)
}
