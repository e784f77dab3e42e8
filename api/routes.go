package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything SetupRoutes mounts. Prompts may be nil when AI
// drafting is disabled.
type Handlers struct {
	System     *SystemHandler
	Leads      *LeadsHandler
	Engagement *EngagementHandler
	Prompts    *PromptsHandler
}

func SetupRoutes(jwtSecret, version, buildTime string, h Handlers) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RecoveryMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(CORSMiddleware)

	// Open endpoints
	r.HandleFunc("/version", h.System.VersionHandler(version, buildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", h.System.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API v1 protected routes
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(JWTAuthMiddlewareWithSecret(jwtSecret))

	v1.HandleFunc("/leads", h.Leads.Create).Methods(http.MethodPost)
	v1.HandleFunc("/leads", h.Leads.List).Methods(http.MethodGet)
	v1.HandleFunc("/leads/{id:[0-9]+}", h.Leads.Get).Methods(http.MethodGet)
	v1.HandleFunc("/leads/{id:[0-9]+}", h.Leads.UpdateContact).Methods(http.MethodPatch)
	v1.HandleFunc("/leads/{id:[0-9]+}", h.Leads.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/leads/{id:[0-9]+}/draft", h.Leads.SaveDraft).Methods(http.MethodPut)
	v1.HandleFunc("/leads/{id:[0-9]+}/draft/generate", h.Leads.GenerateDraft).Methods(http.MethodPost)
	v1.HandleFunc("/leads/{id:[0-9]+}/schedule", h.Leads.Schedule).Methods(http.MethodPut)
	v1.HandleFunc("/leads/{id:[0-9]+}/schedule", h.Leads.CancelSchedule).Methods(http.MethodDelete)
	v1.HandleFunc("/leads/{id:[0-9]+}/send", h.Leads.Send).Methods(http.MethodPost)
	v1.HandleFunc("/outreach/send-due", h.Leads.SendDue).Methods(http.MethodPost)

	v1.HandleFunc("/events", h.Engagement.RecordEvent).Methods(http.MethodPost)
	v1.HandleFunc("/analytics/engagement", h.Engagement.Summary).Methods(http.MethodGet)
	v1.HandleFunc("/cadence", h.Engagement.GetCadence).Methods(http.MethodGet)
	v1.HandleFunc("/cadence", h.Engagement.PutCadence).Methods(http.MethodPut)

	if h.Prompts != nil {
		ai := v1.PathPrefix("/ai").Subrouter()
		ai.HandleFunc("/schemas", h.Prompts.ListSchemas).Methods(http.MethodGet)
		ai.HandleFunc("/schemas/{version}", h.Prompts.PutSchema).Methods(http.MethodPut)
		ai.HandleFunc("/templates", h.Prompts.ListTemplates).Methods(http.MethodGet)
		ai.HandleFunc("/templates/{name}/{version}", h.Prompts.PutTemplate).Methods(http.MethodPut)
		ai.HandleFunc("/reload", h.Prompts.Reload).Methods(http.MethodPost)
	}

	return r
}
