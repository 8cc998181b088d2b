package client

import (
	"fmt"
	"strconv"

	"epic_events/crm_api/schema"
	"epic_events/crm_api/services"
)

type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// CrmClient talks to a running crm api. baseUrl should include the api prefix, for
// example http://localhost:8000/api/v1.
type CrmClient struct {
	BaseClient
	userId uint
}

func New(baseUrl string) *CrmClient {
	return &CrmClient{BaseClient: NewBaseClient(baseUrl, "")}
}

func (c *CrmClient) UserId() uint {
	return c.userId
}

func (c *CrmClient) Login(email, password string) error {
	var data struct {
		UserId      uint   `json:"user_id"`
		AccessToken string `json:"access_token"`
	}
	if err := c.Get("/users/login").Login(email, password).Do(&data); err != nil {
		return err
	}

	c.authToken = data.AccessToken
	c.userId = data.UserId

	return nil
}

type NewUser struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Team      schema.UserTeam
}

func (c *CrmClient) Register(user NewUser) (uint, error) {
	body := map[string]interface{}{
		"email":            user.Email,
		"first_name":       user.FirstName,
		"last_name":        user.LastName,
		"password":         user.Password,
		"confirm_password": user.Password,
		"team":             int(user.Team),
	}

	var res struct {
		UserId uint `json:"user_id"`
	}
	if err := c.Post("/users/register").Json(body).Do(&res); err != nil {
		return 0, fmt.Errorf("failed to register user: %w", err)
	}
	return res.UserId, nil
}

func (c *CrmClient) Info() (services.CurrentUserInfo, error) {
	var res services.CurrentUserInfo
	err := c.Get("/users/info").Do(&res)
	return res, err
}

func (c *CrmClient) CreateCompany(name string) (services.CompanyInfo, error) {
	var res services.CompanyInfo
	err := c.Post("/companies").Json(map[string]string{"name": name}).Do(&res)
	return res, err
}

func (c *CrmClient) ListCompanies(nameContains string) (Page[services.CompanyInfo], error) {
	var res Page[services.CompanyInfo]
	req := c.Get("/companies")
	if nameContains != "" {
		req = req.Param("name_contains", nameContains)
	}
	err := req.Do(&res)
	return res, err
}

func (c *CrmClient) DeleteCompany(companyId uint) error {
	return c.Delete(fmt.Sprintf("/companies/%d", companyId)).Do(nil)
}

// ClientFields holds the writable client fields. Nil fields are left unchanged on update.
type ClientFields struct {
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Mobile       *string `json:"mobile,omitempty"`
	SalesContact *string `json:"sales_contact,omitempty"`
}

func (c *CrmClient) CreateClient(companyId uint, fields ClientFields) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Post(fmt.Sprintf("/companies/%d/clients", companyId)).Json(fields).Do(&res)
	return res, err
}

func (c *CrmClient) GetClient(clientId uint) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Get(fmt.Sprintf("/clients/%d", clientId)).Do(&res)
	return res, err
}

func (c *CrmClient) UpdateClient(companyId, clientId uint, fields ClientFields) (services.ClientInfo, error) {
	var res services.ClientInfo
	err := c.Patch(fmt.Sprintf("/companies/%d/clients/%d", companyId, clientId)).Json(fields).Do(&res)
	return res, err
}

func (c *CrmClient) ListClients(activeOnly bool) (Page[services.ClientInfo], error) {
	var res Page[services.ClientInfo]
	req := c.Get("/clients")
	if activeOnly {
		req = req.Param("is_active", "true")
	}
	err := req.Do(&res)
	return res, err
}

func (c *CrmClient) CreateContract(clientId uint, amount float64, paymentDue string) (services.ContractInfo, error) {
	body := map[string]interface{}{"amount": amount}
	if paymentDue != "" {
		body["payment_due"] = paymentDue
	}

	var res services.ContractInfo
	err := c.Post(fmt.Sprintf("/clients/%d/contracts", clientId)).Json(body).Do(&res)
	return res, err
}

func (c *CrmClient) GetContract(contractId uint) (services.ContractInfo, error) {
	var res services.ContractInfo
	err := c.Get(fmt.Sprintf("/contracts/%d", contractId)).Do(&res)
	return res, err
}

func (c *CrmClient) DeleteContract(clientId, contractId uint) error {
	return c.Delete(fmt.Sprintf("/clients/%d/contracts/%d", clientId, contractId)).Do(nil)
}

// EventFields holds the writable event fields. Nil fields are left unchanged on update.
type EventFields struct {
	Attendees      *int                `json:"attendees,omitempty"`
	Note           *string             `json:"note,omitempty"`
	EventDate      *string             `json:"event_date,omitempty"`
	Status         *schema.EventStatus `json:"status,omitempty"`
	SupportContact *string             `json:"support_contact,omitempty"`
}

func (c *CrmClient) CreateEvent(contractId uint, fields EventFields) (services.EventInfo, error) {
	var res services.EventInfo
	err := c.Post(fmt.Sprintf("/contracts/%d/events", contractId)).Json(fields).Do(&res)
	return res, err
}

func (c *CrmClient) UpdateEvent(contractId, eventId uint, fields EventFields) (services.EventInfo, error) {
	var res services.EventInfo
	err := c.Patch(fmt.Sprintf("/contracts/%d/events/%d", contractId, eventId)).Json(fields).Do(&res)
	return res, err
}

func (c *CrmClient) ListEvents(supportContact uint) (Page[services.EventInfo], error) {
	var res Page[services.EventInfo]
	req := c.Get("/events")
	if supportContact != 0 {
		req = req.Param("support_contact", strconv.FormatUint(uint64(supportContact), 10))
	}
	err := req.Do(&res)
	return res, err
}

func (c *CrmClient) DeleteEvent(contractId, eventId uint) error {
	return c.Delete(fmt.Sprintf("/contracts/%d/events/%d", contractId, eventId)).Do(nil)
}
