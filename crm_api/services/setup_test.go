package services_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/notify"
	"epic_events/crm_api/schema"
	"epic_events/crm_api/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	adminEmail    = "admin@epicevents.com"
	adminPassword = "admin_password123"
)

type testEnv struct {
	db        *gorm.DB
	api       http.Handler
	publisher *notify.RecordingPublisher
}

func setupTestEnvWith(t *testing.T, variables services.Variables) *testEnv {
	dsn := fmt.Sprintf("file:%v?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDb, err := db.DB()
	require.NoError(t, err)
	sqlDb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDb.Close() })

	require.NoError(t, schema.AutoMigrate(db))

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:          []byte("290zcv02ai249"),
			AdminEmail:      adminEmail,
			AdminPassword:   adminPassword,
			TokenExpiration: time.Hour,
		},
	)
	require.NoError(t, err)

	publisher := &notify.RecordingPublisher{}
	crm := services.NewCrmApi(db, userAuth, publisher, variables)

	return &testEnv{db: db, api: crm.Routes(), publisher: publisher}
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWith(t, services.Variables{LoginRateLimit: 1000, LoginRateWindow: time.Minute})
}

func (env *testEnv) newClient() client {
	return client{api: env.api}
}

func (env *testEnv) adminClient(t *testing.T) client {
	c := env.newClient()
	require.NoError(t, c.login(adminEmail, adminPassword))
	return c
}

// newUser registers a user in the given team through the admin and logs them in.
func (env *testEnv) newUser(t *testing.T, name string, team schema.UserTeam) client {
	admin := env.adminClient(t)

	email := name + "@epicevents.com"
	password := name + "_password"
	_, err := admin.register(email, password, team)
	require.NoError(t, err)

	c := env.newClient()
	require.NoError(t, c.login(email, password))
	c.email = email
	return c
}

type errorBody struct {
	Error string `json:"error"`
	Rule  string `json:"rule"`
}

type apiError struct {
	method   string
	endpoint string
	status   int
	body     errorBody
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d: %v (rule=%v)", e.method, e.endpoint, e.status, e.body.Error, e.body.Rule)
}

// statusOf returns the http status carried by err, or 0 if the request succeeded.
func statusOf(err error) int {
	var aerr *apiError
	if errors.As(err, &aerr) {
		return aerr.status
	}
	return 0
}

func ruleOf(err error) string {
	var aerr *apiError
	if errors.As(err, &aerr) {
		return aerr.body.Rule
	}
	return ""
}

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *[2]string
	expect   int
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{api: api, method: method, endpoint: endpoint}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &[2]string{email, password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// Expect fails the request unless the response has exactly this status.
func (r *httpTestRequest) Expect(status int) *httpTestRequest {
	r.expect = status
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}
	if r.login != nil {
		req.SetBasicAuth(r.login[0], r.login[1])
	}

	w := httptest.NewRecorder()
	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		aerr := &apiError{method: r.method, endpoint: r.endpoint, status: res.StatusCode}
		if err := json.NewDecoder(res.Body).Decode(&aerr.body); err != nil {
			aerr.body.Error = w.Body.String()
		}
		return aerr
	}

	if r.expect != 0 && res.StatusCode != r.expect {
		return fmt.Errorf("%v request to endpoint %v returned status %d, expected %d", r.method, r.endpoint, res.StatusCode, r.expect)
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       http.Handler
	authToken string
	userId    uint
	email     string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Patch(endpoint string) *httpTestRequest {
	return c.request("PATCH", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type loginResponse struct {
	UserId      uint   `json:"user_id"`
	AccessToken string `json:"access_token"`
}

func (c *client) login(email, password string) error {
	var res loginResponse
	err := c.Get("/users/login").Login(email, password).Do(&res)
	if err != nil {
		return err
	}
	c.authToken = res.AccessToken
	c.userId = res.UserId
	c.email = email
	return nil
}

func (c *client) register(email, password string, team schema.UserTeam) (uint, error) {
	body := map[string]interface{}{
		"email":            email,
		"first_name":       "First",
		"last_name":        "Last",
		"password":         password,
		"confirm_password": password,
		"team":             int(team),
	}
	var res struct {
		UserId uint `json:"user_id"`
	}
	err := c.Post("/users/register").Json(body).Expect(http.StatusCreated).Do(&res)
	return res.UserId, err
}

type page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func (c *client) createCompany(name string) (services.CompanyInfo, error) {
	var res services.CompanyInfo
	err := c.Post("/companies").Json(map[string]interface{}{"name": name}).Expect(http.StatusCreated).Do(&res)
	return res, err
}

func (c *client) getCompany(id uint) (services.CompanyInfo, error) {
	var res services.CompanyInfo
	err := c.Get(fmt.Sprintf("/companies/%d", id)).Do(&res)
	return res, err
}

func (c *client) deleteCompany(id uint) error {
	return c.Delete(fmt.Sprintf("/companies/%d", id)).Expect(http.StatusNoContent).Do(nil)
}

func clientBody(first, last, email string) map[string]interface{} {
	return map[string]interface{}{
		"first_name": first,
		"last_name":  last,
		"email":      email,
		"phone":      "0123456789",
		"mobile":     "0612345678",
	}
}

func (c *client) createClient(companyId uint, body map[string]interface{}) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Post(fmt.Sprintf("/companies/%d/clients", companyId)).Json(body).Expect(http.StatusCreated).Do(&res)
	return res, err
}

func (c *client) getClient(id uint) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Get(fmt.Sprintf("/clients/%d", id)).Do(&res)
	return res, err
}

func (c *client) updateClient(companyId, clientId uint, body map[string]interface{}) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Put(fmt.Sprintf("/companies/%d/clients/%d", companyId, clientId)).Json(body).Expect(http.StatusAccepted).Do(&res)
	return res, err
}

func (c *client) deleteClient(companyId, clientId uint) error {
	return c.Delete(fmt.Sprintf("/companies/%d/clients/%d", companyId, clientId)).Expect(http.StatusNoContent).Do(nil)
}

func (c *client) createContract(clientId uint, body map[string]interface{}) (services.ContractInfo, error) {
	var res services.ContractInfo
	err := c.Post(fmt.Sprintf("/clients/%d/contracts", clientId)).Json(body).Expect(http.StatusCreated).Do(&res)
	return res, err
}

func (c *client) getContract(id uint) (services.ContractInfo, error) {
	var res services.ContractInfo
	err := c.Get(fmt.Sprintf("/contracts/%d", id)).Do(&res)
	return res, err
}

func (c *client) updateContract(clientId, contractId uint, body map[string]interface{}) (services.ContractInfo, error) {
	var res services.ContractInfo
	err := c.Patch(fmt.Sprintf("/clients/%d/contracts/%d", clientId, contractId)).Json(body).Expect(http.StatusAccepted).Do(&res)
	return res, err
}

func (c *client) deleteContract(clientId, contractId uint) error {
	return c.Delete(fmt.Sprintf("/clients/%d/contracts/%d", clientId, contractId)).Expect(http.StatusNoContent).Do(nil)
}

func (c *client) createEvent(contractId uint, body map[string]interface{}) (services.EventInfo, error) {
	var res services.EventInfo
	err := c.Post(fmt.Sprintf("/contracts/%d/events", contractId)).Json(body).Expect(http.StatusCreated).Do(&res)
	return res, err
}

func (c *client) getEvent(id uint) (services.EventInfo, error) {
	var res services.EventInfo
	err := c.Get(fmt.Sprintf("/events/%d", id)).Do(&res)
	return res, err
}

func (c *client) updateEvent(contractId, eventId uint, body map[string]interface{}) (services.EventInfo, error) {
	var res services.EventInfo
	err := c.Patch(fmt.Sprintf("/contracts/%d/events/%d", contractId, eventId)).Json(body).Expect(http.StatusAccepted).Do(&res)
	return res, err
}

func (c *client) deleteEvent(contractId, eventId uint) error {
	return c.Delete(fmt.Sprintf("/contracts/%d/events/%d", contractId, eventId)).Expect(http.StatusNoContent).Do(nil)
}

// world is the usual fixture: a management user, two sales reps, two support users, and
// a company with one client owned by rep.
type world struct {
	env      *testEnv
	admin    client
	rep      client
	otherRep client
	support  client
	other    client
	company  services.CompanyInfo
	client   services.ClientInfo
}

func newWorld(t *testing.T) world {
	env := setupTestEnv(t)
	w := world{
		env:      env,
		admin:    env.adminClient(t),
		rep:      env.newUser(t, "rep", schema.Sales),
		otherRep: env.newUser(t, "other_rep", schema.Sales),
		support:  env.newUser(t, "support", schema.Support),
		other:    env.newUser(t, "other_support", schema.Support),
	}

	var err error
	w.company, err = w.rep.createCompany("Acme")
	require.NoError(t, err)

	w.client, err = w.rep.createClient(w.company.Id, clientBody("Ada", "Lovelace", "ada@acme.com"))
	require.NoError(t, err)

	return w
}
