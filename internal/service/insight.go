package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/repository"
)

// GenerateInsights сравнивает сводку за день с ближайшей предыдущей и
// сохраняет заметки о трендах: нет продаж, падение выручки, падение
// среднего чека. Все инсайты за дату перезаписываются целиком.
// Если сводки за день нет, возвращает 0 без ошибки.
func (s *Service) GenerateInsights(ctx context.Context, date time.Time) (int, error) {
	day := dateOnly(date)

	current, err := s.repo.GetDailyReport(ctx, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	prev, err := s.repo.GetPreviousDailyReport(ctx, day)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}

	insights := make([]model.Insight, 0)

	if current.TransactionsCount == 0 {
		insights = append(insights, model.Insight{
			Date:     day,
			Title:    "Нет продаж",
			Severity: 2,
			Details:  "За выбранный день нет чеков. Проверьте, работала ли касса.",
		})
	}

	if prev != nil && prev.Revenue > 0 && dropAtLeast30(prev.Revenue, current.Revenue) {
		insights = append(insights, model.Insight{
			Date:     day,
			Title:    "Падение выручки",
			Severity: 2,
			Details: fmt.Sprintf("Выручка упала на %d%% по сравнению с предыдущим днем.",
				dropPercent(prev.Revenue, current.Revenue)),
		})
	}

	if prev != nil && prev.AvgCheck > 0 && dropAtLeast30(prev.AvgCheck, current.AvgCheck) {
		insights = append(insights, model.Insight{
			Date:     day,
			Title:    "Падение среднего чека",
			Severity: 1,
			Details: fmt.Sprintf("Средний чек упал на %d%% по сравнению с предыдущим днем.",
				dropPercent(prev.AvgCheck, current.AvgCheck)),
		})
	}

	if err := s.repo.ReplaceInsights(ctx, day, insights); err != nil {
		return 0, err
	}

	return len(insights), nil
}

// dropAtLeast30 проверяет падение не менее чем на 30% целочисленно,
// чтобы граница срабатывала точно.
func dropAtLeast30(prev, current int64) bool {
	return (prev-current)*10 >= prev*3
}

func dropPercent(prev, current int64) int64 {
	return (prev - current) * 100 / prev
}
