// Package handler содержит HTTP-обработчики API сервиса отчётов.
// Обработчики — тонкие шимы над операциями ядра: разбор аргументов,
// вызов сервиса, сериализация ответа.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/poster"
	"github.com/mmeshcher/poster-reports/internal/repository"
	"github.com/mmeshcher/poster-reports/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ImportDaily(ctx context.Context, client *poster.Client, date time.Time, includeProductsSales bool) (int, error)
	ScanAnomalies(ctx context.Context, date time.Time) ([]model.DataIssue, error)
	GenerateInsights(ctx context.Context, date time.Time) (int, error)
	DailySummaryBySpot(ctx context.Context, date time.Time) (map[string]model.SpotSummary, error)
	BuildReportText(ctx context.Context, date time.Time, cfg model.ReportConfig) (string, error)
	BuildCustomReportText(ctx context.Context, date time.Time, tmpl model.ReportTemplate) (string, error)
	DailyReportRows(ctx context.Context, dateFrom, dateTo time.Time, metrics []string) ([]service.ReportRow, error)
	GetReportTemplate(ctx context.Context, name string) (*model.ReportTemplate, error)
	SaveReportTemplate(ctx context.Context, tmpl model.ReportTemplate) error
}

// Handler реализует HTTP-обработчики API сервиса отчётов.
type Handler struct {
	service Service
	client  *poster.Client
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// client может быть nil, если Poster API не сконфигурирован.
func NewHandler(s Service, client *poster.Client, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		client:  client,
		logger:  logger,
	}
}

func parseDateParam(r *http.Request) (time.Time, error) {
	return time.Parse("2006-01-02", chi.URLParam(r, "date"))
}

func boolQuery(r *http.Request, name string, def bool) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func csvQuery(r *http.Request, name string) []string {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil
	}
	var res []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type importResponse struct {
	Date              string `json:"date"`
	TransactionsCount int    `json:"transactions_count"`
}

// RunImport запускает импорт данных Poster за указанный день.
func (h *Handler) RunImport(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if h.client == nil {
		http.Error(w, "poster client is not configured", http.StatusServiceUnavailable)
		return
	}

	includeProductsSales := boolQuery(r, "include_products_sales", false)

	count, err := h.service.ImportDaily(r.Context(), h.client, date, includeProductsSales)
	if err != nil {
		if errors.Is(err, poster.ErrConfig) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if errors.Is(err, poster.ErrAPI) {
			h.logger.Error("import failed", zap.Error(err), zap.Time("date", date))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		h.logger.Error("import error", zap.Error(err), zap.Time("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, importResponse{
		Date:              date.Format("2006-01-02"),
		TransactionsCount: count,
	})
}

type issueResponse struct {
	IssueType     string `json:"issue_type"`
	TransactionID string `json:"transaction_id,omitempty"`
	Severity      int    `json:"severity"`
	Message       string `json:"message"`
}

// ScanAnomalies пересканирует день на аномалии и возвращает найденное.
func (h *Handler) ScanAnomalies(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	issues, err := h.service.ScanAnomalies(r.Context(), date)
	if err != nil {
		h.logger.Error("scan anomalies error", zap.Error(err), zap.Time("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]issueResponse, 0, len(issues))
	for _, issue := range issues {
		resp = append(resp, issueResponse{
			IssueType:     issue.IssueType,
			TransactionID: issue.TransactionID,
			Severity:      issue.Severity,
			Message:       issue.Message,
		})
	}

	h.writeJSON(w, map[string]any{
		"date":   date.Format("2006-01-02"),
		"issues": resp,
	})
}

// GenerateInsights пересчитывает инсайты за день.
func (h *Handler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	count, err := h.service.GenerateInsights(r.Context(), date)
	if err != nil {
		h.logger.Error("generate insights error", zap.Error(err), zap.Time("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]any{
		"date":     date.Format("2006-01-02"),
		"insights": count,
	})
}

// GetDailySummary возвращает разбивку продаж по точкам за день.
func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	summary, err := h.service.DailySummaryBySpot(r.Context(), date)
	if err != nil {
		h.logger.Error("daily summary error", zap.Error(err), zap.Time("date", date))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, summary)
}

// GetReportText возвращает текстовый отчёт за день. Параметр template
// переключает на именованный шаблон, иначе состав отчёта управляется
// параметрами metrics, include_spots, include_issues, include_returns
// и spot_ids.
func (h *Handler) GetReportText(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateParam(r)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var text string
	if templateName := r.URL.Query().Get("template"); templateName != "" {
		tmpl, err := h.service.GetReportTemplate(r.Context(), templateName)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				http.Error(w, "template not found", http.StatusNotFound)
				return
			}
			h.logger.Error("get template error", zap.Error(err), zap.String("template", templateName))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		text, err = h.service.BuildCustomReportText(r.Context(), date, *tmpl)
		if err != nil {
			h.logger.Error("build custom report error", zap.Error(err), zap.Time("date", date))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	} else {
		cfg := model.ReportConfig{
			Metrics:        csvQuery(r, "metrics"),
			IncludeSpots:   boolQuery(r, "include_spots", true),
			IncludeIssues:  boolQuery(r, "include_issues", true),
			IncludeReturns: boolQuery(r, "include_returns", true),
			SpotIDs:        csvQuery(r, "spot_ids"),
		}
		text, err = h.service.BuildReportText(r.Context(), date, cfg)
		if err != nil {
			h.logger.Error("build report error", zap.Error(err), zap.Time("date", date))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// GetReportRows возвращает построчный отчёт по сводкам за период.
func (h *Handler) GetReportRows(w http.ResponseWriter, r *http.Request) {
	dateFrom, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	dateTo, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	rows, err := h.service.DailyReportRows(r.Context(), dateFrom, dateTo, csvQuery(r, "metrics"))
	if err != nil {
		h.logger.Error("report rows error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]any{"rows": rows})
}

type templateRequest struct {
	Metrics []string `json:"metrics"`
}

// SaveTemplate сохраняет именованный шаблон отчёта.
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SaveReportTemplate(r.Context(), model.ReportTemplate{Name: name, Metrics: req.Metrics}); err != nil {
		h.logger.Error("save template error", zap.Error(err), zap.String("template", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
