package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/repository"
)

// Ключевые слова истории чека, указывающие на перенос между столами.
var tableMoveKeywords = []string{"transfer", "move", "change_table", "change table", "change_table_id"}

// ScanAnomalies пересканирует сохранённые чеки за день и заменяет все
// непроигнорированные аномалии свежим набором. Аномалии, которые человек
// пометил как проигнорированные, не воскрешаются и не удаляются.
func (s *Service) ScanAnomalies(ctx context.Context, date time.Time) ([]model.DataIssue, error) {
	day := dateOnly(date)

	transactions, err := s.repo.GetTransactionsByDate(ctx, day)
	if err != nil {
		return nil, err
	}

	ignored, err := s.repo.GetIgnoredIssueKeys(ctx, day)
	if err != nil {
		return nil, err
	}

	issues := make([]model.DataIssue, 0)

	for _, tx := range transactions {
		if tx.Status == model.TransactionStatusClosed && tx.Sum <= 0 {
			if _, skip := ignored[model.IssueKey{IssueType: model.IssueZeroOrNegativeSum, TransactionID: tx.TransactionID}]; !skip {
				issues = append(issues, model.DataIssue{
					Date:          day,
					IssueType:     model.IssueZeroOrNegativeSum,
					TransactionID: tx.TransactionID,
					Severity:      2,
					Message:       fmt.Sprintf("Чек закрыт с нулевой/отрицательной суммой: %s", tx.TransactionID),
					Context: issueContext(map[string]any{
						"transaction_id": tx.TransactionID,
						"sum":            tx.Sum,
					}),
				})
			}
		}

		if tx.PayedSum > 0 {
			parts := tx.PayedCash + tx.PayedCard + tx.PayedBonus + tx.PayedThirdParty + tx.PayedCert
			if parts != tx.PayedSum {
				if _, skip := ignored[model.IssueKey{IssueType: model.IssuePaymentMismatch, TransactionID: tx.TransactionID}]; !skip {
					issues = append(issues, model.DataIssue{
						Date:          day,
						IssueType:     model.IssuePaymentMismatch,
						TransactionID: tx.TransactionID,
						Severity:      2,
						Message:       fmt.Sprintf("Несоответствие оплат по чеку: %s", tx.TransactionID),
						Context: issueContext(map[string]any{
							"transaction_id": tx.TransactionID,
							"payed_sum":      tx.PayedSum,
							"payed_parts":    parts,
						}),
					})
				}
			}
		}

		if issue, found := detectTableMove(day, tx); found {
			if _, skip := ignored[model.IssueKey{IssueType: model.IssueTableMove, TransactionID: tx.TransactionID}]; !skip {
				issues = append(issues, issue)
			}
		}
	}

	report, err := s.repo.GetDailyReport(ctx, day)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if report != nil && report.TransactionsCount == 0 {
		if _, skip := ignored[model.IssueKey{IssueType: model.IssueNoTransactions}]; !skip {
			issues = append(issues, model.DataIssue{
				Date:      day,
				IssueType: model.IssueNoTransactions,
				Severity:  1,
				Message:   "Нет чеков за день",
				Context:   json.RawMessage(`{}`),
			})
		}
	}

	if err := s.repo.ReplaceOpenIssues(ctx, day, issues); err != nil {
		return nil, err
	}

	return issues, nil
}

// detectTableMove ищет в истории чека запись о переносе на другой стол.
func detectTableMove(day time.Time, tx model.Transaction) (model.DataIssue, bool) {
	var raw map[string]any
	if err := json.Unmarshal(tx.Raw, &raw); err != nil {
		return model.DataIssue{}, false
	}

	history, ok := raw["history"].([]any)
	if !ok {
		return model.DataIssue{}, false
	}

	moved := false
	for _, entry := range history {
		h, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		historyType := strings.ToLower(safeString(h["type_history"]))
		for _, keyword := range tableMoveKeywords {
			if strings.Contains(historyType, keyword) {
				moved = true
				break
			}
		}
		if moved {
			break
		}
	}
	if !moved {
		return model.DataIssue{}, false
	}

	waiter := safeString(firstNonEmpty(raw["name"], raw["waiter"], raw["user_name"]))
	waiterText := waiter
	if waiterText == "" {
		waiterText = "—"
	}

	when := tx.DateClose
	if when == nil {
		when = tx.DateStart
	}
	whenText := "—"
	if when != nil {
		whenText = when.Format("2006-01-02 15:04")
	}

	sumText := fmt.Sprintf("%.2f €", float64(tx.Sum)/100)

	return model.DataIssue{
		Date:          day,
		IssueType:     model.IssueTableMove,
		TransactionID: tx.TransactionID,
		Severity:      1,
		Message: fmt.Sprintf("Перенос на другой стол: чек %s, официант %s, время %s, сумма %s",
			tx.TransactionID, waiterText, whenText, sumText),
		Context: issueContext(map[string]any{
			"transaction_id": tx.TransactionID,
			"waiter":         waiter,
			"time":           whenText,
			"sum":            tx.Sum,
		}),
	}, true
}

func firstNonEmpty(values ...any) any {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return v
		}
		if _, ok := v.(string); !ok && v != nil {
			return v
		}
	}
	return nil
}

func issueContext(values map[string]any) json.RawMessage {
	raw, err := json.Marshal(values)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
