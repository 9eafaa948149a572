// Package model содержит доменные сущности сервиса отчётов Poster.
package model

import (
	"encoding/json"
	"time"
)

// DailyReport — сводка по продажам за один календарный день.
// Денежные поля хранятся в минорных единицах (центах).
type DailyReport struct {
	Date              time.Time
	TransactionsCount int
	Revenue           int64
	AvgCheck          int64
	RawTransactions   json.RawMessage
	RawPayments       json.RawMessage
	RawProductsSales  json.RawMessage
}

// Transaction — нормализованный чек, полученный из Poster API.
// Raw хранит исходный payload целиком: там остаются позиции чека,
// история изменений и прочие поля, не вынесенные в колонки.
type Transaction struct {
	TransactionID    string
	DateStart        *time.Time
	DateClose        *time.Time
	Status           int
	Sum              int64
	PayedSum         int64
	PayedCash        int64
	PayedCard        int64
	PayedBonus       int64
	PayedThirdParty  int64
	PayedCert        int64
	SpotID           string
	TableID          string
	UserID           string
	ClientID         string
	ServiceMode      string
	ProcessingStatus string
	Raw              json.RawMessage
}

// Статусы чека в Poster.
const (
	TransactionStatusClosed = 2
	TransactionStatusReturn = 3
)

// Spot — торговая точка из справочника заведений.
type Spot struct {
	SpotID string
	Name   string
}

// DataIssue — найденная при сканировании аномалия данных.
// TransactionID вынесен в отдельное поле: вместе с IssueType он образует
// ключ, по которому повторное сканирование не воскрешает проигнорированные
// человеком записи.
type DataIssue struct {
	Date          time.Time
	IssueType     string
	TransactionID string
	Severity      int
	Message       string
	Context       json.RawMessage
	Ignored       bool
	IgnoredAt     *time.Time
}

// Типы аномалий.
const (
	IssueZeroOrNegativeSum = "zero_or_negative_sum"
	IssuePaymentMismatch   = "payment_mismatch"
	IssueTableMove         = "table_move"
	IssueNoTransactions    = "no_transactions"
)

// IssueKey идентифицирует аномалию внутри одного дня.
type IssueKey struct {
	IssueType     string
	TransactionID string
}

// Insight — заметка о тренде за день. В отличие от DataIssue не имеет
// состояния «проигнорировано» и полностью перезаписывается при пересчёте.
type Insight struct {
	Date     time.Time
	Title    string
	Severity int
	Details  string
}

// ReportTemplate — именованный шаблон отчёта с набором метрик.
type ReportTemplate struct {
	Name    string
	Metrics []string
}

// ReportConfig управляет составом текстового отчёта.
type ReportConfig struct {
	Metrics        []string
	IncludeSpots   bool
	IncludeIssues  bool
	IncludeReturns bool
	SpotIDs        []string
}

// DefaultReportConfig возвращает конфигурацию отчёта по умолчанию:
// все метрики и все секции включены.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Metrics:        []string{"revenue", "transactions", "avg_check", "issues"},
		IncludeSpots:   true,
		IncludeIssues:  true,
		IncludeReturns: true,
	}
}

// SpotSummary — агрегат продаж по одной торговой точке за день.
type SpotSummary struct {
	Transactions int   `json:"transactions"`
	Revenue      int64 `json:"revenue"`
	Returns      int   `json:"returns"`
	ReturnsSum   int64 `json:"returns_sum"`
}
