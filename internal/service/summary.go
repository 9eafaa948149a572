package service

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/poster"
	"github.com/mmeshcher/poster-reports/internal/repository"
)

// DailySummaryBySpot возвращает разбивку продаж по торговым точкам за день.
// Предпочитает официальную сводку Poster; если она отсутствует или не даёт
// ни одной строки, агрегирует сохранённые чеки. Чеки без точки попадают
// в ключ "unknown", возвратом считается чек со статусом возврата или
// отрицательной суммой.
func (s *Service) DailySummaryBySpot(ctx context.Context, date time.Time) (map[string]model.SpotSummary, error) {
	day := dateOnly(date)

	raw, err := s.repo.GetSpotsSalesReport(ctx, day)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		agg := poster.ParseSpotsAggregate(raw)
		summary := make(map[string]model.SpotSummary)
		for _, row := range agg.Rows {
			if row.SpotID == "" {
				continue
			}
			summary[row.SpotID] = model.SpotSummary{
				Transactions: int(row.Transactions),
				Revenue:      row.Revenue,
				Returns:      int(row.Returns),
				ReturnsSum:   row.ReturnsSum,
			}
		}
		if len(summary) > 0 {
			return summary, nil
		}
	}

	transactions, err := s.repo.GetTransactionsByDate(ctx, day)
	if err != nil {
		return nil, err
	}

	summary := make(map[string]model.SpotSummary)
	for _, tx := range transactions {
		key := tx.SpotID
		if key == "" {
			key = "unknown"
		}
		item := summary[key]
		item.Transactions++
		item.Revenue += tx.Sum
		if tx.Status == model.TransactionStatusReturn || tx.Sum < 0 {
			item.Returns++
			item.ReturnsSum += tx.Sum
		}
		summary[key] = item
	}

	return summary, nil
}
