package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"epic_events/crm_api/policy"
	"epic_events/utils"
	"epic_events/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return ip
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

// crmIds picks the record ids out of the route, e.g. client_id and contract_id for
// /clients/{client_id}/contracts/{contract_id}. They are only complete once routing has
// finished, so this runs after the handler.
func crmIds(r *http.Request) []interface{} {
	ids := make([]interface{}, 0)

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ids
	}

	for i, key := range rctx.URLParams.Keys {
		if strings.HasSuffix(key, "_id") {
			ids = append(ids, slog.String(key, rctx.URLParams.Values[i]))
		}
	}

	return ids
}

// auditRecord collects what the policy layer decided about a request, for the audit
// line written when the request completes.
type auditRecord struct {
	resource policy.Resource
	action   policy.Action
	rule     policy.Rule
}

const auditRecordKey requestContextKey = "audit"

// AuditDecision records the resource and action a request was authorized against and,
// for a denial, the rule that refused it. Requests outside the audit middleware are
// ignored.
func AuditDecision(r *http.Request, resource policy.Resource, action policy.Action, rule policy.Rule) {
	record, ok := r.Context().Value(auditRecordKey).(*auditRecord)
	if !ok {
		return
	}
	record.resource = resource
	record.action = action
	if rule != "" {
		record.rule = rule
	}
}

// AuditLogger writes one json line per authenticated request: who made it, which crm
// resource and action it resolved to, and whether the policy let it through.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, logging.GetJsonLogOptions(false)))
	return AuditLogger{logger: logger}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			utils.WriteError(w, r, http.StatusInternalServerError, err, "")
			return
		}

		record := &auditRecord{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), auditRecordKey, record)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		attrs := []interface{}{
			"user_id", user.Id,
			"email", user.Email,
			"team", user.Team.String(),
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if record.resource != "" {
			attrs = append(attrs, "resource", string(record.resource), "action", string(record.action))
		}
		if ids := crmIds(r); len(ids) > 0 {
			attrs = append(attrs, slog.Group("ids", ids...))
		}

		level := slog.LevelInfo
		if record.rule != "" {
			attrs = append(attrs, "denied_by", string(record.rule))
			level = slog.LevelWarn
		}

		log.logger.Log(r.Context(), level, "", attrs...)
	}
	return http.HandlerFunc(handler)
}
