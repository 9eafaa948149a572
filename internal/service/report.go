package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/repository"
)

func noDataText(day time.Time) string {
	return fmt.Sprintf("Отчет за %s: данных нет.", day.Format("2006-01-02"))
}

func euros(cents int64) string {
	return fmt.Sprintf("%.2f €", float64(cents)/100)
}

func spotName(names map[string]string, spotID string) string {
	if spotID == "" {
		return "Неизвестная точка"
	}
	if name, ok := names[spotID]; ok {
		return name
	}
	return "Точка " + spotID
}

// BuildReportText формирует текстовый отчёт за день по заданной
// конфигурации секций и метрик. Метрики выводятся в порядке, в котором
// перечислены в конфигурации; при отсутствии сводки за день возвращается
// фиксированное сообщение «данных нет».
func (s *Service) BuildReportText(ctx context.Context, date time.Time, cfg model.ReportConfig) (string, error) {
	day := dateOnly(date)

	report, err := s.repo.GetDailyReport(ctx, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return noDataText(day), nil
		}
		return "", err
	}

	summary, err := s.DailySummaryBySpot(ctx, day)
	if err != nil {
		return "", err
	}
	if len(cfg.SpotIDs) > 0 {
		allowed := make(map[string]struct{}, len(cfg.SpotIDs))
		for _, id := range cfg.SpotIDs {
			allowed[id] = struct{}{}
		}
		for spotID := range summary {
			if _, ok := allowed[spotID]; !ok {
				delete(summary, spotID)
			}
		}
	}

	issues, err := s.repo.GetOpenIssues(ctx, day)
	if err != nil {
		return "", err
	}

	metrics := cfg.Metrics
	if len(metrics) == 0 {
		metrics = model.DefaultReportConfig().Metrics
	}

	lines := []string{fmt.Sprintf("Отчет за %s", day.Format("2006-01-02"))}
	for _, metric := range metrics {
		switch metric {
		case "revenue":
			lines = append(lines, "Выручка: "+euros(report.Revenue))
		case "transactions":
			lines = append(lines, fmt.Sprintf("Чеков: %d", report.TransactionsCount))
		case "avg_check":
			lines = append(lines, "Средний чек: "+euros(report.AvgCheck))
		case "issues":
			lines = append(lines, fmt.Sprintf("Проблем: %d", len(issues)))
		}
	}

	if cfg.IncludeSpots {
		lines = append(lines, "", "По точкам:")
		if len(summary) == 0 {
			lines = append(lines, "— нет данных по точкам")
		} else {
			names, err := s.repo.GetSpotNames(ctx)
			if err != nil {
				return "", err
			}

			spotIDs := make([]string, 0, len(summary))
			for spotID := range summary {
				spotIDs = append(spotIDs, spotID)
			}
			sort.Strings(spotIDs)

			for _, spotID := range spotIDs {
				item := summary[spotID]
				if cfg.IncludeReturns {
					lines = append(lines, fmt.Sprintf("• %s: выручка %s, чеков %d, возвратов %d",
						spotName(names, spotID), euros(item.Revenue), item.Transactions, item.Returns))
				} else {
					lines = append(lines, fmt.Sprintf("• %s: выручка %s, чеков %d",
						spotName(names, spotID), euros(item.Revenue), item.Transactions))
				}
			}
		}
	}

	if cfg.IncludeIssues && len(issues) > 0 {
		lines = append(lines, "", "Сомнительные операции:")
		shown := issues
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, issue := range shown {
			lines = append(lines, "• "+issue.Message)
		}
		if len(issues) > 5 {
			lines = append(lines, fmt.Sprintf("… и еще %d", len(issues)-5))
		}
	}

	return strings.Join(lines, "\n"), nil
}

var customMetricLabels = map[string]string{
	"transactions_count": "Чеков",
	"revenue":            "Выручка",
	"avg_check":          "Средний чек",
}

// BuildCustomReportText формирует отчёт за день по именованному шаблону
// с произвольным набором метрик.
func (s *Service) BuildCustomReportText(ctx context.Context, date time.Time, tmpl model.ReportTemplate) (string, error) {
	day := dateOnly(date)

	metrics := tmpl.Metrics
	if len(metrics) == 0 {
		metrics = []string{"transactions_count", "revenue", "avg_check"}
	}

	report, err := s.repo.GetDailyReport(ctx, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return noDataText(day), nil
		}
		return "", err
	}

	values := map[string]string{
		"transactions_count": strconv.Itoa(report.TransactionsCount),
		"revenue":            euros(report.Revenue),
		"avg_check":          euros(report.AvgCheck),
	}

	lines := []string{fmt.Sprintf("%s за %s", tmpl.Name, day.Format("2006-01-02"))}
	for _, metric := range metrics {
		label, ok := customMetricLabels[metric]
		if !ok {
			label = metric
		}
		lines = append(lines, label+": "+values[metric])
	}

	return strings.Join(lines, "\n"), nil
}

// ReportRow — значения метрик одной дневной сводки для табличного отчёта.
type ReportRow struct {
	Date    string           `json:"date"`
	Metrics map[string]int64 `json:"metrics"`
}

// DailyReportRows возвращает построчный отчёт по сводкам за период:
// одна строка на день, только запрошенные метрики.
func (s *Service) DailyReportRows(ctx context.Context, dateFrom, dateTo time.Time, metrics []string) ([]ReportRow, error) {
	if len(metrics) == 0 {
		metrics = []string{"transactions_count", "revenue", "avg_check"}
	}

	reports, err := s.repo.GetDailyReports(ctx, dateOnly(dateFrom), dateOnly(dateTo))
	if err != nil {
		return nil, err
	}

	rows := make([]ReportRow, 0, len(reports))
	for _, report := range reports {
		row := ReportRow{
			Date:    report.Date.Format("2006-01-02"),
			Metrics: make(map[string]int64, len(metrics)),
		}
		for _, metric := range metrics {
			switch metric {
			case "transactions_count":
				row.Metrics[metric] = int64(report.TransactionsCount)
			case "revenue":
				row.Metrics[metric] = report.Revenue
			case "avg_check":
				row.Metrics[metric] = report.AvgCheck
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
