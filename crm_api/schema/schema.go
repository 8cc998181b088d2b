package schema

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type User struct {
	Id uint `gorm:"primaryKey"`

	Email     string `gorm:"unique;size:100;not null"`
	FirstName string `gorm:"size:25;not null"`
	LastName  string `gorm:"size:25;not null"`
	Password  []byte

	Team UserTeam `gorm:"not null"`

	IsActive bool `gorm:"not null;default:true"`
	IsStaff  bool `gorm:"not null;default:false"`
}

type Company struct {
	Id   uint   `gorm:"primaryKey"`
	Name string `gorm:"unique;size:250;not null"`

	Clients []Client `gorm:"constraint:OnDelete:RESTRICT"`
}

type Client struct {
	Id uint `gorm:"primaryKey"`

	FirstName string `gorm:"size:25;not null"`
	LastName  string `gorm:"size:25;not null"`
	Email     string `gorm:"unique;size:100;not null"`
	Phone     string `gorm:"size:20"`
	Mobile    string `gorm:"size:20"`

	CompanyId uint     `gorm:"not null;index"`
	Company   *Company `gorm:"constraint:OnDelete:RESTRICT"`

	SalesContactId *uint `gorm:"index"`
	SalesContact   *User `gorm:"constraint:OnDelete:SET NULL"`

	IsActive bool `gorm:"not null;default:false"`

	Contracts []Contract `gorm:"constraint:OnDelete:RESTRICT"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Contract struct {
	Id uint `gorm:"primaryKey"`

	ClientId uint    `gorm:"not null;index"`
	Client   *Client `gorm:"constraint:OnDelete:RESTRICT"`

	SalesContactId uint  `gorm:"not null;index"`
	SalesContact   *User `gorm:"constraint:OnDelete:RESTRICT"`

	Amount     float64 `gorm:"type:decimal(10,2);not null;default:0"`
	PaymentDue *time.Time

	// Signed iff an event exists for the contract.
	Status bool `gorm:"not null;default:false"`

	Event *Event `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Event struct {
	Id uint `gorm:"primaryKey"`

	ContractId uint      `gorm:"not null;uniqueIndex"`
	Contract   *Contract `gorm:"constraint:OnDelete:CASCADE"`

	SupportContactId *uint `gorm:"index"`
	SupportContact   *User `gorm:"constraint:OnDelete:RESTRICT"`

	Status    EventStatus `gorm:"not null;default:1"`
	Attendees int         `gorm:"not null;default:0"`
	Note      string
	EventDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type lowerUniqueIndex struct {
	name   string
	table  string
	column string
}

// Names and emails are unique ignoring case. The api checks this before writing, these
// indexes make the store reject concurrent case-variant inserts as well.
var lowerUniqueIndexes = []lowerUniqueIndex{
	{name: "idx_companies_lower_name", table: "companies", column: "name"},
	{name: "idx_clients_lower_email", table: "clients", column: "email"},
	{name: "idx_users_lower_email", table: "users", column: "email"},
}

func CreateLowerUniqueIndexes(db *gorm.DB) error {
	for _, idx := range lowerUniqueIndexes {
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %v ON %v (lower(%v))", idx.name, idx.table, idx.column)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("error creating index %v: %w", idx.name, err)
		}
	}
	return nil
}

func DropLowerUniqueIndexes(db *gorm.DB) error {
	for _, idx := range lowerUniqueIndexes {
		if err := db.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %v", idx.name)).Error; err != nil {
			return fmt.Errorf("error dropping index %v: %w", idx.name, err)
		}
	}
	return nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Company{}, &Client{}, &Contract{}, &Event{}); err != nil {
		return err
	}
	return CreateLowerUniqueIndexes(db)
}
