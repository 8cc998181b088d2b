package services

import (
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

type CompanyService struct {
	db      *gorm.DB
	clients *ClientService
}

func (s *CompanyService) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.Policy(policy.CompanyResource, policy.List)).Get("/", s.List)
	r.With(auth.Policy(policy.CompanyResource, policy.Create)).Post("/", s.Create)

	r.Route("/{company_id}", func(r chi.Router) {
		r.With(auth.Policy(policy.CompanyResource, policy.Retrieve)).Get("/", s.Retrieve)
		r.With(auth.Policy(policy.CompanyResource, policy.Update)).Put("/", s.Update)
		r.With(auth.Policy(policy.CompanyResource, policy.Update)).Patch("/", s.Update)
		r.With(auth.Policy(policy.CompanyResource, policy.Destroy)).Delete("/", s.Delete)

		r.Mount("/clients", s.clients.CompanyRoutes())
	})

	return r
}

type companyRequest struct {
	Name *string `json:"name"`
}

func (s *CompanyService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Model(&schema.Company{})
	if name := r.URL.Query().Get("name_contains"); name != "" {
		query = query.Where("lower(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}

	page := utils.ParsePagination(r)
	var companies []schema.Company
	total, err := paginate(query, page, &companies)
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.List, err)
		return
	}

	utils.WritePage(w, r, convertAll(companies, convertToCompanyInfo), total, page)
}

func (s *CompanyService) Retrieve(w http.ResponseWriter, r *http.Request) {
	companyId, err := pathId(r, "company_id")
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Retrieve, err)
		return
	}

	company, err := schema.GetCompany(companyId, s.db)
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Retrieve, err)
		return
	}

	utils.WriteJsonResponse(w, r, convertToCompanyInfo(company))
}

func (s *CompanyService) Create(w http.ResponseWriter, r *http.Request) {
	var params companyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var name string
	if params.Name != nil {
		name = strings.TrimSpace(*params.Name)
	}

	company := schema.Company{Name: name}
	err := runTxn(s.db, policy.CompanyResource, policy.Create, func(txn *gorm.DB) error {
		if err := lifecycle.ValidateCompanyName(txn, name, 0); err != nil {
			return err
		}

		if result := txn.Create(&company); result.Error != nil {
			return createError("company", result.Error)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Create, err)
		return
	}

	slog.Info("company created", "code", logging.COMPANY, "company_id", company.Id, "actor_id", actorOf(r).UserId)

	utils.WriteCreated(w, r, convertToCompanyInfo(company))
}

func (s *CompanyService) Update(w http.ResponseWriter, r *http.Request) {
	companyId, err := pathId(r, "company_id")
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Update, err)
		return
	}

	var params companyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var company schema.Company
	err = runTxn(s.db, policy.CompanyResource, policy.Update, func(txn *gorm.DB) error {
		var err error
		company, err = schema.GetCompany(companyId, txn)
		if err != nil {
			return err
		}

		if params.Name == nil {
			return nil
		}

		name := strings.TrimSpace(*params.Name)
		if err := lifecycle.ValidateCompanyName(txn, name, company.Id); err != nil {
			return err
		}
		company.Name = name

		return saveColumns(txn, "company", schema.ErrCompanyNotFound, &company, "name")
	})
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Update, err)
		return
	}

	slog.Info("company updated", "code", logging.COMPANY, "company_id", company.Id, "actor_id", actorOf(r).UserId)

	utils.WriteAccepted(w, r, convertToCompanyInfo(company))
}

func (s *CompanyService) Delete(w http.ResponseWriter, r *http.Request) {
	companyId, err := pathId(r, "company_id")
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Destroy, err)
		return
	}

	err = runTxn(s.db, policy.CompanyResource, policy.Destroy, func(txn *gorm.DB) error {
		if _, err := schema.GetCompany(companyId, txn); err != nil {
			return err
		}

		if err := lifecycle.CheckCompanyDeletable(txn, companyId); err != nil {
			return err
		}

		if result := txn.Delete(&schema.Company{}, companyId); result.Error != nil {
			return deleteError("company", result.Error)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, policy.CompanyResource, policy.Destroy, err)
		return
	}

	slog.Info("company deleted", "code", logging.COMPANY, "company_id", companyId, "actor_id", actorOf(r).UserId)

	utils.WriteNoContent(w)
}
