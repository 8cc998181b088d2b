package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type UserTeam int

const (
	Management UserTeam = 1
	Support    UserTeam = 2
	Sales      UserTeam = 3
)

func (t UserTeam) String() string {
	switch t {
	case Management:
		return "management"
	case Support:
		return "support"
	case Sales:
		return "sales"
	default:
		return fmt.Sprintf("team(%d)", int(t))
	}
}

func (t UserTeam) Valid() bool {
	return t == Management || t == Support || t == Sales
}

// ParseTeam accepts either the integer tag or the team name.
func ParseTeam(value string) (UserTeam, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if i, err := strconv.Atoi(value); err == nil {
		team := UserTeam(i)
		if !team.Valid() {
			return 0, fmt.Errorf("invalid team %d, must be one of 1 (management), 2 (support), 3 (sales)", i)
		}
		return team, nil
	}

	switch value {
	case "management":
		return Management, nil
	case "support":
		return Support, nil
	case "sales":
		return Sales, nil
	}
	return 0, fmt.Errorf("invalid team '%v', must be one of management, support, sales", value)
}

func (t *UserTeam) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var team UserTeam
	var err error
	switch v := raw.(type) {
	case float64:
		team, err = ParseTeam(strconv.Itoa(int(v)))
	case string:
		team, err = ParseTeam(v)
	default:
		err = fmt.Errorf("invalid team value %v", string(data))
	}
	if err != nil {
		return err
	}
	*t = team
	return nil
}

type EventStatus int

const (
	NotAttributed EventStatus = 1
	Begin         EventStatus = 2
	InProgress    EventStatus = 3
	Ended         EventStatus = 4
)

func (s EventStatus) String() string {
	switch s {
	case NotAttributed:
		return "not_attributed"
	case Begin:
		return "begin"
	case InProgress:
		return "in_progress"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s EventStatus) Valid() bool {
	return s >= NotAttributed && s <= Ended
}

func CheckValidEventStatus(status EventStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid event status %d, must be one of 1 (not attributed), 2 (begin), 3 (in progress), 4 (ended)", int(status))
	}
	return nil
}
