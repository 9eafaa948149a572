package poster

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// SpotsTotals — вариант ответа dash.getSpotsSales с единым итогом.
// Суммы выражены в мажорных единицах валюты (евро) как десятичные числа.
type SpotsTotals struct {
	Revenue       decimal.Decimal
	Transactions  int64
	MiddleInvoice *decimal.Decimal
}

// SpotRow — строка варианта ответа с разбивкой по торговым точкам.
// Суммы уже в минорных единицах (центах).
type SpotRow struct {
	SpotID       string
	Revenue      int64
	Transactions int64
	Clients      int64
	Returns      int64
	ReturnsSum   int64
}

// SpotsAggregate — распознанная форма ответа dash.getSpotsSales.
// Poster в разных релизах возвращает либо объект с итогом, либо список
// строк по точкам; разбор выполняется один раз на границе клиента,
// дальше бизнес-логика работает с размеченным объединением.
type SpotsAggregate struct {
	Total *SpotsTotals
	Rows  []SpotRow
	// RowsTopLevel: true, если список точек пришёл верхним уровнем
	// response, а не вложенным полем spots внутри объекта итогов.
	RowsTopLevel bool
}

// ParseSpotsAggregate разбирает сырой ответ dash.getSpotsSales.
// Нераспознанная форма даёт пустой агрегат, а не ошибку.
func ParseSpotsAggregate(raw json.RawMessage) SpotsAggregate {
	var agg SpotsAggregate
	if len(raw) == 0 {
		return agg
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return agg
	}

	payload, ok := decoded.(map[string]any)
	if !ok {
		return agg
	}

	switch response := payload["response"].(type) {
	case map[string]any:
		if v, ok := response["revenue"]; ok && v != nil {
			total := SpotsTotals{
				Transactions: coerceInt(firstTruthy(response["clients"], response["transactions_count"])),
			}
			if d, ok := coerceDecimal(v); ok {
				total.Revenue = d
			}
			if mi, ok := response["middle_invoice"]; ok && mi != nil {
				if d, ok := coerceDecimal(mi); ok {
					total.MiddleInvoice = &d
				}
			}
			agg.Total = &total
		}
		if spots, ok := response["spots"].([]any); ok {
			agg.Rows = parseSpotRows(spots)
		}
	case []any:
		agg.Rows = parseSpotRows(response)
		agg.RowsTopLevel = true
	}

	return agg
}

func parseSpotRows(items []any) []SpotRow {
	rows := make([]SpotRow, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, SpotRow{
			SpotID:       coerceString(firstTruthy(m["spot_id"], m["id"])),
			Revenue:      coerceInt(firstTruthy(m["revenue"], m["sum"])),
			Transactions: coerceInt(firstTruthy(m["transactions_count"], m["count"])),
			Clients:      coerceInt(m["clients"]),
			Returns:      coerceInt(m["returns_count"]),
			ReturnsSum:   coerceInt(m["returns_sum"]),
		})
	}
	return rows
}

// firstTruthy возвращает первое непустое значение: nil, ноль, пустая
// строка и false считаются пустыми.
func firstTruthy(values ...any) any {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t != "" {
				return v
			}
		case float64:
			if t != 0 {
				return v
			}
		case bool:
			if t {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

func coerceInt(v any) int64 {
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

func coerceString(v any) string {
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

func coerceDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
