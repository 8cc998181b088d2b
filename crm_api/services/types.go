package services

import (
	"time"

	"epic_events/crm_api/schema"
)

type UserInfo struct {
	Id        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Team      int    `json:"team"`
	TeamName  string `json:"team_name"`
	IsActive  bool   `json:"is_active"`
	IsStaff   bool   `json:"is_staff"`
}

func convertToUserInfo(user schema.User) UserInfo {
	return UserInfo{
		Id:        user.Id,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Team:      int(user.Team),
		TeamName:  user.Team.String(),
		IsActive:  user.IsActive,
		IsStaff:   user.IsStaff,
	}
}

// CurrentUserInfo is returned for the caller's own account, with the expiry of the
// token used to make the request.
type CurrentUserInfo struct {
	UserInfo
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

type CompanyInfo struct {
	Id   uint   `json:"id"`
	Name string `json:"name"`
}

func convertToCompanyInfo(company schema.Company) CompanyInfo {
	return CompanyInfo{Id: company.Id, Name: company.Name}
}

type ClientInfo struct {
	Id           uint      `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Mobile       string    `json:"mobile"`
	Company      uint      `json:"company"`
	SalesContact *uint     `json:"sales_contact"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func convertToClientInfo(client schema.Client) ClientInfo {
	return ClientInfo{
		Id:           client.Id,
		FirstName:    client.FirstName,
		LastName:     client.LastName,
		Email:        client.Email,
		Phone:        client.Phone,
		Mobile:       client.Mobile,
		Company:      client.CompanyId,
		SalesContact: client.SalesContactId,
		IsActive:     client.IsActive,
		CreatedAt:    client.CreatedAt,
		UpdatedAt:    client.UpdatedAt,
	}
}

type ContractInfo struct {
	Id           uint       `json:"id"`
	Client       uint       `json:"client"`
	SalesContact uint       `json:"sales_contact"`
	Amount       float64    `json:"amount"`
	PaymentDue   *time.Time `json:"payment_due"`
	Status       bool       `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func convertToContractInfo(contract schema.Contract) ContractInfo {
	return ContractInfo{
		Id:           contract.Id,
		Client:       contract.ClientId,
		SalesContact: contract.SalesContactId,
		Amount:       contract.Amount,
		PaymentDue:   contract.PaymentDue,
		Status:       contract.Status,
		CreatedAt:    contract.CreatedAt,
		UpdatedAt:    contract.UpdatedAt,
	}
}

type EventInfo struct {
	Id             uint       `json:"id"`
	Contract       uint       `json:"contract"`
	SupportContact *uint      `json:"support_contact"`
	Status         int        `json:"status"`
	StatusName     string     `json:"status_name"`
	Attendees      int        `json:"attendees"`
	Note           string     `json:"note"`
	EventDate      *time.Time `json:"event_date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func convertToEventInfo(event schema.Event) EventInfo {
	return EventInfo{
		Id:             event.Id,
		Contract:       event.ContractId,
		SupportContact: event.SupportContactId,
		Status:         int(event.Status),
		StatusName:     event.Status.String(),
		Attendees:      event.Attendees,
		Note:           event.Note,
		EventDate:      event.EventDate,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

func convertAll[T any, R any](rows []T, convert func(T) R) []R {
	infos := make([]R, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, convert(row))
	}
	return infos
}
