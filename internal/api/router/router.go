// Package router wires the lifecycle endpoints into a chi router.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/oakwellcare/clinic-engagement/internal/api/handlers"
	apimiddleware "github.com/oakwellcare/clinic-engagement/internal/api/middleware"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	Requests     *handlers.RequestsHandler
	Appointments *handlers.AppointmentsHandler

	// ActorJWTSecret verifies bearer tokens on /api/v1 routes.
	ActorJWTSecret string

	// MetricsHandler, when set, is mounted publicly at /metrics.
	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(apimiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(apimiddleware.ActorJWT(cfg.ActorJWTSecret))

		api.Route("/requests", func(req chi.Router) {
			req.Post("/", cfg.Requests.Submit)
			req.Get("/pending", cfg.Requests.ListPending)
			req.Route("/{requestID}", func(one chi.Router) {
				one.Get("/", cfg.Requests.Get)
				one.Post("/review", cfg.Requests.Review)
				one.Post("/respond", cfg.Requests.Respond)
				one.Post("/confirm", cfg.Requests.Confirm)
			})
		})

		api.Get("/availability/{doctorID}", cfg.Appointments.Availability)

		api.Route("/appointments", func(appt chi.Router) {
			appt.Post("/", cfg.Appointments.Schedule)
			appt.Route("/{appointmentID}", func(one chi.Router) {
				one.Get("/", cfg.Appointments.Get)
				one.Get("/bill", cfg.Appointments.Bill)
				one.Post("/confirm", cfg.Appointments.Confirm)
				one.Post("/check-in", cfg.Appointments.CheckIn)
				one.Post("/start", cfg.Appointments.StartConsultation)
				one.Post("/complete", cfg.Appointments.Complete)
				one.Post("/reschedule", cfg.Appointments.Reschedule)
				one.Post("/cancel", cfg.Appointments.Cancel)
			})
		})
	})

	return r
}
