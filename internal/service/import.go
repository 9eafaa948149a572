package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/poster-reports/internal/model"
	"github.com/mmeshcher/poster-reports/internal/poster"
)

var hundred = decimal.NewFromInt(100)

// ImportDaily выполняет импорт данных Poster за один календарный день:
// загружает чеки и сводки, нормализует и сохраняет чеки, сверяет итоги
// и записывает дневную сводку. Возвращает итоговое число чеков.
//
// Обязательны только запросы чеков и отчёта по оплатам; остальные
// источники при ошибке API деградируют до пустых, не прерывая импорт.
func (s *Service) ImportDaily(ctx context.Context, client *poster.Client, date time.Time, includeProductsSales bool) (int, error) {
	day := dateOnly(date)
	dateArg := day.Format("20060102")

	transactions, err := client.GetTransactions(ctx, dateArg, dateArg)
	if err != nil {
		return 0, fmt.Errorf("fetch transactions: %w", err)
	}

	payments, err := client.GetPaymentsReport(ctx, dateArg, dateArg)
	if err != nil {
		return 0, fmt.Errorf("fetch payments report: %w", err)
	}

	var productsSales json.RawMessage
	if includeProductsSales {
		productsSales, err = client.GetProductsSales(ctx, dateArg, dateArg)
		if err != nil {
			if !errors.Is(err, poster.ErrAPI) {
				return 0, err
			}
			productsSales = nil
		}
	}

	spotsSales, err := client.GetSpotsSales(ctx, dateArg, dateArg)
	if err != nil {
		if !errors.Is(err, poster.ErrAPI) {
			return 0, err
		}
		spotsSales = nil
	}

	if err := s.syncSpots(ctx, client); err != nil {
		return 0, err
	}

	items := extractTransactions(transactions)
	transactionsCount := len(items)
	var revenue int64
	for _, item := range items {
		revenue += safeInt(item["sum"])
	}
	avgCheck := deriveAvgCheck(revenue, transactionsCount)

	for _, item := range items {
		transactionID := safeString(item["transaction_id"])
		if transactionID == "" {
			continue
		}

		raw, err := json.Marshal(item)
		if err != nil {
			return 0, fmt.Errorf("encode transaction %s: %w", transactionID, err)
		}

		tx := model.Transaction{
			TransactionID:    transactionID,
			DateStart:        parseMillis(item["date_start"]),
			DateClose:        parseMillis(item["date_close"]),
			Status:           int(safeInt(item["status"])),
			Sum:              safeInt(item["sum"]),
			PayedSum:         safeInt(item["payed_sum"]),
			PayedCash:        safeInt(item["payed_cash"]),
			PayedCard:        safeInt(item["payed_card"]),
			PayedBonus:       safeInt(item["payed_bonus"]),
			PayedThirdParty:  safeInt(item["payed_third_party"]),
			PayedCert:        safeInt(item["payed_cert"]),
			SpotID:           safeString(item["spot_id"]),
			TableID:          safeString(item["table_id"]),
			UserID:           safeString(item["user_id"]),
			ClientID:         safeString(item["client_id"]),
			ServiceMode:      safeString(item["service_mode"]),
			ProcessingStatus: safeString(item["processing_status"]),
			Raw:              raw,
		}
		if err := s.repo.UpsertTransaction(ctx, tx); err != nil {
			return 0, err
		}
	}

	if err := s.repo.UpsertPaymentsReport(ctx, day, payments); err != nil {
		return 0, err
	}
	if payloadNotEmpty(productsSales) {
		if err := s.repo.UpsertProductsSalesReport(ctx, day, productsSales); err != nil {
			return 0, err
		}
	}
	if payloadNotEmpty(spotsSales) {
		if err := s.repo.UpsertSpotsSalesReport(ctx, day, spotsSales); err != nil {
			return 0, err
		}
	}

	// Сверка: официальная сводка по точкам надёжнее суммы по чекам.
	revenue, transactionsCount, avgCheck = reconcileTotals(
		poster.ParseSpotsAggregate(spotsSales), revenue, transactionsCount, avgCheck,
	)

	if productsSales == nil {
		productsSales = json.RawMessage(`{}`)
	}

	report := model.DailyReport{
		Date:              day,
		TransactionsCount: transactionsCount,
		Revenue:           revenue,
		AvgCheck:          avgCheck,
		RawTransactions:   transactions,
		RawPayments:       payments,
		RawProductsSales:  productsSales,
	}
	if err := s.repo.UpsertDailyReport(ctx, report); err != nil {
		return 0, err
	}

	return transactionsCount, nil
}

func (s *Service) syncSpots(ctx context.Context, client *poster.Client) error {
	spotsList, err := client.GetSpots(ctx)
	if err != nil {
		if errors.Is(err, poster.ErrAPI) {
			return nil
		}
		return err
	}

	var decoded struct {
		Response []map[string]any `json:"response"`
	}
	if err := json.Unmarshal(spotsList, &decoded); err != nil {
		return nil
	}

	for _, row := range decoded.Response {
		spotID := safeString(row["spot_id"])
		name := safeString(row["name"])
		if spotID == "" || name == "" {
			continue
		}
		if err := s.repo.UpsertSpot(ctx, spotID, name); err != nil {
			return err
		}
	}

	return nil
}

// reconcileTotals выбирает самый надёжный источник дневных итогов.
// Вариант с единым итогом приходит в мажорных единицах и конвертируется
// в центы; вариант со строками по точкам уже в центах.
func reconcileTotals(agg poster.SpotsAggregate, revenue int64, count int, avgCheck int64) (int64, int, int64) {
	switch {
	case agg.Total != nil:
		if agg.Total.Revenue.IsNegative() {
			return revenue, count, avgCheck
		}
		revenue = agg.Total.Revenue.Mul(hundred).Round(0).IntPart()
		count = int(agg.Total.Transactions)
		if agg.Total.MiddleInvoice != nil {
			avgCheck = agg.Total.MiddleInvoice.Mul(hundred).Round(0).IntPart()
		} else {
			avgCheck = deriveAvgCheck(revenue, count)
		}
	case agg.RowsTopLevel:
		var totalRevenue, totalTx int64
		for _, row := range agg.Rows {
			totalRevenue += row.Revenue
			txCount := row.Transactions
			if txCount == 0 {
				txCount = row.Clients
			}
			totalTx += txCount
		}
		if totalRevenue < 0 {
			return revenue, count, avgCheck
		}
		revenue = totalRevenue
		count = int(totalTx)
		avgCheck = deriveAvgCheck(revenue, count)
	}
	return revenue, count, avgCheck
}

func deriveAvgCheck(revenue int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return revenue / int64(count)
}

// extractTransactions достаёт список чеков из ответа dash.getTransactions.
// Любая неожиданная форма даёт пустой список.
func extractTransactions(raw json.RawMessage) []map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	payload, ok := decoded.(map[string]any)
	if !ok {
		return nil
	}

	list, ok := payload["response"].([]any)
	if !ok {
		return nil
	}

	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

// safeInt приводит значение произвольного типа к целому:
// числа усекаются, строки разбираются как целые, остальное даёт 0.
func safeInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func safeString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// parseMillis разбирает миллисекундный epoch-таймстемп.
// Нечисловые значения и значения <= 0 означают «время отсутствует».
func parseMillis(v any) *time.Time {
	var ms int64
	switch t := v.(type) {
	case float64:
		ms = int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil
		}
		ms = n
	default:
		return nil
	}

	if ms <= 0 {
		return nil
	}

	ts := time.UnixMilli(ms).UTC()
	return &ts
}

// payloadNotEmpty сообщает, содержит ли payload хоть какие-то данные:
// пустой объект, пустой список, null и пустая строка считаются пустыми.
func payloadNotEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}

	switch t := decoded.(type) {
	case nil:
		return false
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}
