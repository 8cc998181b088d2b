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

type ClientService struct {
	db        *gorm.DB
	contracts *ContractService
}

// Routes serves the flat /clients collection.
func (s *ClientService) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.ClientResource, policy.List)).Get("/", s.List)

	r.Route("/{client_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.ClientResource, policy.Retrieve)).Get("/", s.Retrieve)

		r.Mount("/contracts", s.contracts.ClientRoutes())
	})

	return r
}

// CompanyRoutes serves /companies/{company_id}/clients.
func (s *ClientService) CompanyRoutes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.ClientResource, policy.List)).Get("/", s.List)
	r.With(auth.Policy(policy.ClientResource, policy.Create)).Post("/", s.Create)

	r.Route("/{client_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.ClientResource, policy.Retrieve)).Get("/", s.Retrieve)
		r.With(auth.Policy(policy.ClientResource, policy.Update)).Put("/", s.Update)
		r.With(auth.Policy(policy.ClientResource, policy.Update)).Patch("/", s.Update)
		r.With(auth.Policy(policy.ClientResource, policy.Destroy)).Delete("/", s.Delete)
	})

	return r
}

type clientRequest struct {
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Mobile       *string `json:"mobile"`
	SalesContact *string `json:"sales_contact"`
	IsActive     *bool   `json:"is_active"`
}

func (req *clientRequest) apply(client *schema.Client) {
	if req.FirstName != nil {
		client.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		client.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		client.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		client.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Mobile != nil {
		client.Mobile = strings.TrimSpace(*req.Mobile)
	}
}

// loadClient resolves {client_id}, scoped to {company_id} when the route has one.
func loadClient(r *http.Request, txn *gorm.DB) (schema.Client, error) {
	companyId, err := optionalPathId(r, "company_id")
	if err != nil {
		return schema.Client{}, err
	}
	clientId, err := pathId(r, "client_id")
	if err != nil {
		return schema.Client{}, err
	}

	if companyId == nil {
		return schema.GetClient(clientId, txn)
	}
	if _, err := schema.GetCompany(*companyId, txn); err != nil {
		return schema.Client{}, err
	}
	return schema.GetClientInCompany(clientId, *companyId, txn)
}

// findSalesUser resolves a sales contact given by email. Users outside the sales team
// are reported as not found.
func findSalesUser(email string, txn *gorm.DB) (schema.User, error) {
	user, err := schema.GetUserByEmail(email, txn)
	if err != nil {
		return user, fmt.Errorf("sales contact '%v': %w", email, err)
	}
	if user.Team != schema.Sales {
		return user, fmt.Errorf("sales contact '%v': %w", email, schema.ErrUserNotFound)
	}
	return user, nil
}

func (s *ClientService) List(w http.ResponseWriter, r *http.Request) {
	companyId, err := optionalPathId(r, "company_id")
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.List, err)
		return
	}
	if companyId == nil {
		companyId, err = utils.QueryId(r, "company")
		if err != nil {
			writeError(w, r, policy.ClientResource, policy.List, badRequest(err))
			return
		}
	} else if _, err := schema.GetCompany(*companyId, s.db); err != nil {
		writeError(w, r, policy.ClientResource, policy.List, err)
		return
	}

	query := s.db.Model(&schema.Client{})
	if companyId != nil {
		query = query.Where("company_id = ?", *companyId)
	}

	q := r.URL.Query()
	if email := q.Get("email"); email != "" {
		query = query.Where("lower(email) = ?", strings.ToLower(email))
	}
	if name := q.Get("name_contains"); name != "" {
		companies := s.db.Model(&schema.Company{}).Select("id").Where("lower(name) LIKE ?", "%"+strings.ToLower(name)+"%")
		query = query.Where("company_id IN (?)", companies)
	}

	salesContact, err := utils.QueryId(r, "sales_contact")
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.List, badRequest(err))
		return
	}
	if salesContact != nil {
		query = query.Where("sales_contact_id = ?", *salesContact)
	}

	isActive, err := utils.QueryBool(r, "is_active")
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.List, badRequest(err))
		return
	}
	if isActive != nil {
		query = query.Where("is_active = ?", *isActive)
	}

	page := utils.ParsePagination(r)
	var clients []schema.Client
	total, err := paginate(query, page, &clients)
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.List, err)
		return
	}

	utils.WritePage(w, r, convertAll(clients, convertToClientInfo), total, page)
}

func (s *ClientService) Retrieve(w http.ResponseWriter, r *http.Request) {
	client, err := loadClient(r, s.db)
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.Retrieve, err)
		return
	}

	utils.WriteJsonResponse(w, r, convertToClientInfo(client))
}

func (s *ClientService) Create(w http.ResponseWriter, r *http.Request) {
	companyId, err := pathId(r, "company_id")
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.Create, err)
		return
	}

	var params clientRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var client schema.Client
	err = runTxn(s.db, policy.ClientResource, policy.Create, func(txn *gorm.DB) error {
		if _, err := schema.GetCompany(companyId, txn); err != nil {
			return err
		}

		// The creator becomes the sales contact.
		if params.SalesContact != nil {
			return policy.ManagementOnlyField("sales_contact")
		}
		if params.IsActive != nil {
			return lifecycle.RejectDerivedField("is_active")
		}

		owner := actor.UserId
		client = schema.Client{CompanyId: companyId, SalesContactId: &owner}
		params.apply(&client)

		if err := lifecycle.ValidateClient(client); err != nil {
			return err
		}
		if err := lifecycle.ValidateClientEmail(txn, client.Email, 0); err != nil {
			return err
		}

		if result := txn.Create(&client); result.Error != nil {
			return createError("client", result.Error)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.Create, err)
		return
	}

	slog.Info("client created", "code", logging.CLIENT, "client_id", client.Id, "company_id", companyId, "actor_id", actor.UserId)

	utils.WriteCreated(w, r, convertToClientInfo(client))
}

func (s *ClientService) Update(w http.ResponseWriter, r *http.Request) {
	var params clientRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	actor := actorOf(r)

	var client schema.Client
	err := runTxn(s.db, policy.ClientResource, policy.Update, func(txn *gorm.DB) error {
		loaded, err := loadClient(r, txn)
		if err != nil {
			return err
		}
		client, err = schema.LockClient(loaded.Id, txn)
		if err != nil {
			return err
		}

		if err := policy.CanModifyClient(actor, client); err != nil {
			return err
		}
		if params.IsActive != nil {
			return lifecycle.RejectDerivedField("is_active")
		}

		if params.SalesContact != nil {
			if err := policy.CanReassignSalesContact(actor); err != nil {
				return err
			}
			rep, err := findSalesUser(strings.TrimSpace(*params.SalesContact), txn)
			if err != nil {
				return err
			}
			client.SalesContactId = &rep.Id
			client.SalesContact = nil
		}

		params.apply(&client)

		if err := lifecycle.ValidateClient(client); err != nil {
			return err
		}
		if params.Email != nil {
			if err := lifecycle.ValidateClientEmail(txn, client.Email, client.Id); err != nil {
				return err
			}
		}

		return saveColumns(txn, "client", schema.ErrClientNotFound, &client,
			"first_name", "last_name", "email", "phone", "mobile", "sales_contact_id")
	})
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.Update, err)
		return
	}

	slog.Info("client updated", "code", logging.CLIENT, "client_id", client.Id, "actor_id", actor.UserId)

	utils.WriteAccepted(w, r, convertToClientInfo(client))
}

func (s *ClientService) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)

	var clientId uint
	err := runTxn(s.db, policy.ClientResource, policy.Destroy, func(txn *gorm.DB) error {
		client, err := loadClient(r, txn)
		if err != nil {
			return err
		}
		clientId = client.Id

		if err := policy.CanModifyClient(actor, client); err != nil {
			return err
		}

		if err := lifecycle.CheckClientDeletable(txn, client.Id); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Client{}, client.Id); result.Error != nil {
			return deleteError("client", result.Error)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, policy.ClientResource, policy.Destroy, err)
		return
	}

	slog.Info("client deleted", "code", logging.CLIENT, "client_id", clientId, "actor_id", actor.UserId)

	utils.WriteNoContent(w)
}
