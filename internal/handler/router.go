package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/credit-service/internal/metrics"
	"github.com/Dan9191/credit-service/internal/middleware"
)

// NewRouter registers every route of the gateway and wraps it with CORS
func NewRouter(h *Handler, m *metrics.Metrics, log *logrus.Logger, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recover(log), middleware.Logging(log, m))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)

	// Credits
	r.HandleFunc("/credits", h.CreateCredit).Methods(http.MethodPost)
	r.HandleFunc("/credits", h.ListCredits).Methods(http.MethodGet)
	r.HandleFunc("/credits/number/{creditNumber}", h.GetCreditByNumber).Methods(http.MethodGet)
	r.HandleFunc("/credits/customer/{customerId}", h.ListCustomerCredits).Methods(http.MethodGet)
	r.HandleFunc("/credits/customer/{customerId}/overdue", h.HasOverdueDebt).Methods(http.MethodGet)
	r.HandleFunc("/credits/{id}", h.GetCredit).Methods(http.MethodGet)
	r.HandleFunc("/credits/{id}", h.DeleteCredit).Methods(http.MethodDelete)
	r.HandleFunc("/credits/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	r.HandleFunc("/credits/{id}/payments", h.ApplyPayment).Methods(http.MethodPost)
	r.HandleFunc("/credits/{id}/term", h.ExtendTerm).Methods(http.MethodPut)

	// Admin
	r.HandleFunc("/admin/sweep", h.TriggerSweep).Methods(http.MethodPost)

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler(r)
}
