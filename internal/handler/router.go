package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/poster-reports/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса отчётов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/imports/{date}", h.RunImport)
		r.Post("/anomalies/{date}/scan", h.ScanAnomalies)
		r.Post("/insights/{date}", h.GenerateInsights)

		r.Get("/reports", h.GetReportRows)
		r.Get("/reports/{date}/summary", h.GetDailySummary)
		r.Get("/reports/{date}/text", h.GetReportText)

		r.Put("/templates/{name}", h.SaveTemplate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
