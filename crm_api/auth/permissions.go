package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"epic_events/crm_api/metrics"
	"epic_events/crm_api/policy"
	"epic_events/utils"
	"epic_events/utils/logging"
)

// WriteDenial writes the response for a policy error and counts it.
func WriteDenial(w http.ResponseWriter, r *http.Request, resource policy.Resource, action policy.Action, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, policy.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, policy.ErrForbidden):
		status = http.StatusForbidden
	}

	rule := policy.RuleOf(err)
	AuditDecision(r, resource, action, rule)
	if status == http.StatusForbidden {
		metrics.RecordDenial(string(resource), string(action), string(rule))
		slog.Info("request denied", "code", logging.AUTH, "resource", resource, "action", action, "rule", rule, "error", err)
	} else if status == http.StatusInternalServerError {
		slog.Error("unexpected policy error", "code", logging.AUTH, "resource", resource, "action", action, "error", err)
	}

	utils.WriteError(w, r, status, err, string(rule))
}

// Policy applies the blanket team rule for the route before the handler runs.
func Policy(resource policy.Resource, action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			AuditDecision(r, resource, action, "")
			if err := policy.Authorize(ActorFromContext(r), action, resource); err != nil {
				WriteDenial(w, r, resource, action, err)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
