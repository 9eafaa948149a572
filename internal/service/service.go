// Package service реализует бизнес-логику сервиса отчётов Poster:
// дневной импорт, сверку источников, поиск аномалий, инсайты и
// формирование текстовых отчётов.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	UpsertSpot(ctx context.Context, spotID, name string) error
	GetSpotNames(ctx context.Context) (map[string]string, error)
	UpsertTransaction(ctx context.Context, tx model.Transaction) error
	GetTransactionsByDate(ctx context.Context, date time.Time) ([]model.Transaction, error)
	UpsertDailyReport(ctx context.Context, report model.DailyReport) error
	GetDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error)
	GetPreviousDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error)
	GetDailyReports(ctx context.Context, dateFrom, dateTo time.Time) ([]model.DailyReport, error)
	UpsertPaymentsReport(ctx context.Context, date time.Time, raw json.RawMessage) error
	UpsertProductsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error
	UpsertSpotsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error
	GetSpotsSalesReport(ctx context.Context, date time.Time) (json.RawMessage, error)
	GetIgnoredIssueKeys(ctx context.Context, date time.Time) (map[model.IssueKey]struct{}, error)
	ReplaceOpenIssues(ctx context.Context, date time.Time, issues []model.DataIssue) error
	GetOpenIssues(ctx context.Context, date time.Time) ([]model.DataIssue, error)
	ReplaceInsights(ctx context.Context, date time.Time, insights []model.Insight) error
	UpsertReportTemplate(ctx context.Context, tmpl model.ReportTemplate) error
	GetReportTemplate(ctx context.Context, name string) (*model.ReportTemplate, error)
}

// Service содержит бизнес-логику сервиса отчётов Poster.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetReportTemplate возвращает сохранённый шаблон отчёта по имени.
func (s *Service) GetReportTemplate(ctx context.Context, name string) (*model.ReportTemplate, error) {
	return s.repo.GetReportTemplate(ctx, name)
}

// SaveReportTemplate сохраняет именованный шаблон отчёта.
func (s *Service) SaveReportTemplate(ctx context.Context, tmpl model.ReportTemplate) error {
	return s.repo.UpsertReportTemplate(ctx, tmpl)
}

// dateOnly отбрасывает время, оставляя календарную дату в UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
