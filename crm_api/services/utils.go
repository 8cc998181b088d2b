package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"epic_events/crm_api/auth"
	"epic_events/crm_api/lifecycle"
	"epic_events/crm_api/metrics"
	"epic_events/crm_api/notify"
	"epic_events/crm_api/policy"
	"epic_events/crm_api/schema"
	"epic_events/utils"

	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

var notFoundErrors = []error{
	schema.ErrUserNotFound,
	schema.ErrCompanyNotFound,
	schema.ErrClientNotFound,
	schema.ErrContractNotFound,
	schema.ErrEventNotFound,
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}

	switch {
	case errors.Is(err, policy.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, policy.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	}
	for _, nf := range notFoundErrors {
		if errors.Is(err, nf) {
			return http.StatusNotFound
		}
	}

	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

var errInternal = errors.New("internal server error")

// writeError maps err onto the response. Store failures are logged and reported
// without detail.
func writeError(w http.ResponseWriter, r *http.Request, resource policy.Resource, action policy.Action, err error) {
	code := GetResponseCode(err)

	rule := policy.RuleOf(err)
	auth.AuditDecision(r, resource, action, rule)
	switch code {
	case http.StatusForbidden:
		metrics.RecordDenial(string(resource), string(action), string(rule))
	case http.StatusInternalServerError:
		slog.Error("request failed", "resource", resource, "action", action, "error", err)
		err = errInternal
	}

	utils.WriteError(w, r, code, fmt.Errorf("unable to %v %v: %w", action, resource, err), string(rule))
}

func badRequest(err error) error {
	return CodedError(err, http.StatusBadRequest)
}

// transitionDispatcher counts and publishes lifecycle transitions once their transaction
// has committed. Publish failures never fail the request.
type transitionDispatcher struct {
	publisher notify.Publisher
}

func (d transitionDispatcher) dispatch(actor *policy.Actor, transitions []lifecycle.Transition) {
	var actorId uint
	if actor != nil {
		actorId = actor.UserId
	}
	for _, t := range transitions {
		metrics.RecordTransition(t.Entity, t.To)
		if err := d.publisher.Publish(notify.FromTransition(t, actorId)); err != nil {
			slog.Error("error publishing lifecycle notification", "transition", t.String(), "error", err)
		}
	}
}

// pathId reads a numeric id from the route. Malformed ids are a 400, ids that do not
// resolve are reported later as 404 by the lookup.
func pathId(r *http.Request, key string) (uint, error) {
	id, err := utils.URLParamId(r, key)
	if err != nil {
		return 0, badRequest(err)
	}
	return id, nil
}

// optionalPathId returns nil when the route has no such parameter, i.e. for the flat
// collection routes.
func optionalPathId(r *http.Request, key string) (*uint, error) {
	if _, err := utils.URLParam(r, key); err != nil {
		return nil, nil
	}
	id, err := pathId(r, key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Date accepts either a calendar date or a full RFC3339 timestamp.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(data []byte) error {
	value := strings.Trim(string(data), `"`)
	if value == "" || value == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("invalid date '%v', expected YYYY-MM-DD or RFC3339", value)
	}
	d.Time = t
	return nil
}

func (d *Date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func parseQueryInt(r *http.Request, key string) (*int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return nil, badRequest(fmt.Errorf("invalid value '%v' for query parameter %v", value, key))
	}
	return &i, nil
}

func actorOf(r *http.Request) *policy.Actor {
	return auth.ActorFromContext(r)
}

func paginate(query *gorm.DB, page utils.PaginationParams, dest interface{}) (int64, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		slog.Error("sql error counting rows for list", "error", err)
		return 0, schema.ErrDbAccessFailed
	}

	result := query.Session(&gorm.Session{}).Order("id").Limit(page.Limit).Offset(page.Offset).Find(dest)
	if result.Error != nil {
		slog.Error("sql error listing rows", "error", result.Error)
		return 0, schema.ErrDbAccessFailed
	}

	return total, nil
}

// runTxn wraps the mutation in a transaction and reports its duration.
func runTxn(db *gorm.DB, resource policy.Resource, action policy.Action, fn func(txn *gorm.DB) error) error {
	timer := metrics.MutationTimer(string(resource), string(action))
	defer timer.ObserveDuration()

	return db.Transaction(fn)
}

func storeError(op, entity string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return CodedError(fmt.Errorf("%v already exists: %w", entity, err), http.StatusConflict)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return CodedError(fmt.Errorf("%v is referenced by other records: %w", entity, err), http.StatusConflict)
	}
	slog.Error("sql error "+op+" "+entity, "error", err)
	return schema.ErrDbAccessFailed
}

func createError(entity string, err error) error {
	return storeError("creating", entity, err)
}

func saveError(entity string, err error) error {
	return storeError("updating", entity, err)
}

func deleteError(entity string, err error) error {
	return storeError("deleting", entity, err)
}

// saveColumns writes only the named columns of row, which must carry its primary key.
// Derived columns are never listed here, they are written by the lifecycle sync
// functions under a row lock.
func saveColumns(txn *gorm.DB, entity string, notFound error, row interface{}, columns ...string) error {
	result := txn.Model(row).Select(columns).Updates(row)
	if result.Error != nil {
		return saveError(entity, result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound
	}
	return nil
}
