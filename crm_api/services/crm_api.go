package services

import (
	"log"
	"net/http"
	"os"
	"time"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/notify"
	"epic_events/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Variables struct {
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

type CrmApi struct {
	user     UserService
	company  CompanyService
	client   ClientService
	contract ContractService
	event    EventService
	userAuth auth.IdentityProvider
}

func NewCrmApi(db *gorm.DB, userAuth auth.IdentityProvider, publisher notify.Publisher, variables Variables) CrmApi {
	dispatcher := transitionDispatcher{publisher: publisher}

	event := EventService{db: db, notifier: dispatcher}
	contract := ContractService{db: db, notifier: dispatcher, events: &event}
	client := ClientService{db: db, contracts: &contract}
	company := CompanyService{db: db, clients: &client}

	return CrmApi{
		user:     UserService{db: db, userAuth: userAuth, variables: variables},
		company:  company,
		client:   client,
		contract: contract,
		event:    event,
		userAuth: userAuth,
	}
}

func (c *CrmApi) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/users", c.user.Routes())

	r.Group(func(r chi.Router) {
		r.Use(c.userAuth.AuthMiddleware()...)

		r.Mount("/companies", c.company.Routes())
		r.Mount("/clients", c.client.Routes())
		r.Mount("/contracts", c.contract.Routes())
		r.Mount("/events", c.event.Routes())
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w, r)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
