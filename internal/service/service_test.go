package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/repository"
)

const dayKeyLayout = "2006-01-02"

// stubRepo — репозиторий в памяти для тестов сервиса.
type stubRepo struct {
	spots           map[string]string
	transactions    map[string]model.Transaction
	dailyReports    map[string]model.DailyReport
	paymentsReports map[string]json.RawMessage
	productsReports map[string]json.RawMessage
	spotsReports    map[string]json.RawMessage
	ignoredKeys     map[string]map[model.IssueKey]struct{}
	openIssues      map[string][]model.DataIssue
	insights        map[string][]model.Insight
	templates       map[string]model.ReportTemplate
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		spots:           make(map[string]string),
		transactions:    make(map[string]model.Transaction),
		dailyReports:    make(map[string]model.DailyReport),
		paymentsReports: make(map[string]json.RawMessage),
		productsReports: make(map[string]json.RawMessage),
		spotsReports:    make(map[string]json.RawMessage),
		ignoredKeys:     make(map[string]map[model.IssueKey]struct{}),
		openIssues:      make(map[string][]model.DataIssue),
		insights:        make(map[string][]model.Insight),
		templates:       make(map[string]model.ReportTemplate),
	}
}

func dayKey(date time.Time) string {
	return date.UTC().Format(dayKeyLayout)
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) UpsertSpot(ctx context.Context, spotID, name string) error {
	s.spots[spotID] = name
	return nil
}

func (s *stubRepo) GetSpotNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string, len(s.spots))
	for k, v := range s.spots {
		names[k] = v
	}
	return names, nil
}

func (s *stubRepo) UpsertTransaction(ctx context.Context, tx model.Transaction) error {
	s.transactions[tx.TransactionID] = tx
	return nil
}

func (s *stubRepo) GetTransactionsByDate(ctx context.Context, date time.Time) ([]model.Transaction, error) {
	var ids []string
	for id, tx := range s.transactions {
		if tx.DateStart != nil && dayKey(*tx.DateStart) == dayKey(date) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	res := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		res = append(res, s.transactions[id])
	}
	return res, nil
}

func (s *stubRepo) UpsertDailyReport(ctx context.Context, report model.DailyReport) error {
	s.dailyReports[dayKey(report.Date)] = report
	return nil
}

func (s *stubRepo) GetDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	report, ok := s.dailyReports[dayKey(date)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &report, nil
}

func (s *stubRepo) GetPreviousDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	var bestKey string
	for key := range s.dailyReports {
		if key < dayKey(date) && key > bestKey {
			bestKey = key
		}
	}
	if bestKey == "" {
		return nil, repository.ErrNotFound
	}
	report := s.dailyReports[bestKey]
	return &report, nil
}

func (s *stubRepo) GetDailyReports(ctx context.Context, dateFrom, dateTo time.Time) ([]model.DailyReport, error) {
	var keys []string
	for key := range s.dailyReports {
		if key >= dayKey(dateFrom) && key <= dayKey(dateTo) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	res := make([]model.DailyReport, 0, len(keys))
	for _, key := range keys {
		res = append(res, s.dailyReports[key])
	}
	return res, nil
}

func (s *stubRepo) UpsertPaymentsReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	s.paymentsReports[dayKey(date)] = raw
	return nil
}

func (s *stubRepo) UpsertProductsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	s.productsReports[dayKey(date)] = raw
	return nil
}

func (s *stubRepo) UpsertSpotsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	s.spotsReports[dayKey(date)] = raw
	return nil
}

func (s *stubRepo) GetSpotsSalesReport(ctx context.Context, date time.Time) (json.RawMessage, error) {
	raw, ok := s.spotsReports[dayKey(date)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return raw, nil
}

func (s *stubRepo) GetIgnoredIssueKeys(ctx context.Context, date time.Time) (map[model.IssueKey]struct{}, error) {
	keys := make(map[model.IssueKey]struct{})
	for key := range s.ignoredKeys[dayKey(date)] {
		keys[key] = struct{}{}
	}
	return keys, nil
}

func (s *stubRepo) markIgnored(date time.Time, key model.IssueKey) {
	day := dayKey(date)
	if s.ignoredKeys[day] == nil {
		s.ignoredKeys[day] = make(map[model.IssueKey]struct{})
	}
	s.ignoredKeys[day][key] = struct{}{}
}

func (s *stubRepo) ReplaceOpenIssues(ctx context.Context, date time.Time, issues []model.DataIssue) error {
	s.openIssues[dayKey(date)] = issues
	return nil
}

func (s *stubRepo) GetOpenIssues(ctx context.Context, date time.Time) ([]model.DataIssue, error) {
	return s.openIssues[dayKey(date)], nil
}

func (s *stubRepo) ReplaceInsights(ctx context.Context, date time.Time, insights []model.Insight) error {
	s.insights[dayKey(date)] = insights
	return nil
}

func (s *stubRepo) UpsertReportTemplate(ctx context.Context, tmpl model.ReportTemplate) error {
	s.templates[tmpl.Name] = tmpl
	return nil
}

func (s *stubRepo) GetReportTemplate(ctx context.Context, name string) (*model.ReportTemplate, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tmpl, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
