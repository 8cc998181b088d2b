package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"epic_events/crm_api/schema"
	"epic_events/utils/logging"

	"gopkg.in/yaml.v3"
)

type seedUser struct {
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	Team      string `yaml:"team"`
}

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

// ParseSeedUsers reads a yaml document of the form
//
//	users:
//	  - email: jane@epicevents.com
//	    first_name: Jane
//	    last_name: Doe
//	    password: secret
//	    team: sales
func ParseSeedUsers(data []byte) ([]NewUser, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing seed users: %w", err)
	}

	users := make([]NewUser, 0, len(file.Users))
	for i, u := range file.Users {
		if u.Email == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d: email and password are required", i)
		}
		team, err := schema.ParseTeam(u.Team)
		if err != nil {
			return nil, fmt.Errorf("seed user %v: %w", u.Email, err)
		}
		users = append(users, NewUser{
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Password:  u.Password,
			Team:      team,
		})
	}

	return users, nil
}

func LoadSeedUsers(path string) ([]NewUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed users file: %w", err)
	}
	return ParseSeedUsers(data)
}

// SeedUsers creates the given users, skipping emails that already exist so the file can
// be applied on every start.
func SeedUsers(provider IdentityProvider, users []NewUser) error {
	for _, user := range users {
		_, err := provider.CreateUser(user)
		if err != nil {
			if errors.Is(err, ErrEmailAlreadyInUse) {
				continue
			}
			return fmt.Errorf("error seeding user %v: %w", user.Email, err)
		}
		slog.Info("seeded user", "code", logging.AUTH, "email", user.Email, "team", user.Team.String())
	}
	return nil
}
