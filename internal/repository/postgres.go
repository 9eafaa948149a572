// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/poster-reports/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound возвращается, когда запрошенная запись отсутствует.
var ErrNotFound = errors.New("record not found")

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только serialization failure, deadlock и сетевые сбои.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func rawOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return []byte(raw)
}

// UpsertSpot сохраняет торговую точку справочника по её идентификатору.
func (r *PostgresRepository) UpsertSpot(ctx context.Context, spotID, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO spots (spot_id, name) VALUES ($1, $2)
		 ON CONFLICT (spot_id) DO UPDATE SET name = EXCLUDED.name`,
		spotID, name,
	)
	if err != nil {
		return fmt.Errorf("upsert spot: %w", err)
	}
	return nil
}

// GetSpotNames возвращает отображение идентификатора точки в её название.
func (r *PostgresRepository) GetSpotNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT spot_id, name FROM spots`)
	if err != nil {
		return nil, fmt.Errorf("select spots: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var spotID, name string
		if err := rows.Scan(&spotID, &name); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		names[spotID] = name
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return names, nil
}

// UpsertTransaction сохраняет чек по его идентификатору. Повторный импорт
// заменяет запись целиком, не создавая дубликата.
func (r *PostgresRepository) UpsertTransaction(ctx context.Context, tx model.Transaction) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO transactions (
				transaction_id, date_start, date_close, status, sum, payed_sum,
				payed_cash, payed_card, payed_bonus, payed_third_party, payed_cert,
				spot_id, table_id, user_id, client_id, service_mode, processing_status, raw
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			 ON CONFLICT (transaction_id) DO UPDATE SET
				date_start = EXCLUDED.date_start,
				date_close = EXCLUDED.date_close,
				status = EXCLUDED.status,
				sum = EXCLUDED.sum,
				payed_sum = EXCLUDED.payed_sum,
				payed_cash = EXCLUDED.payed_cash,
				payed_card = EXCLUDED.payed_card,
				payed_bonus = EXCLUDED.payed_bonus,
				payed_third_party = EXCLUDED.payed_third_party,
				payed_cert = EXCLUDED.payed_cert,
				spot_id = EXCLUDED.spot_id,
				table_id = EXCLUDED.table_id,
				user_id = EXCLUDED.user_id,
				client_id = EXCLUDED.client_id,
				service_mode = EXCLUDED.service_mode,
				processing_status = EXCLUDED.processing_status,
				raw = EXCLUDED.raw,
				updated_at = now()`,
			tx.TransactionID, tx.DateStart, tx.DateClose, tx.Status, tx.Sum, tx.PayedSum,
			tx.PayedCash, tx.PayedCard, tx.PayedBonus, tx.PayedThirdParty, tx.PayedCert,
			tx.SpotID, tx.TableID, tx.UserID, tx.ClientID, tx.ServiceMode, tx.ProcessingStatus,
			rawOrEmpty(tx.Raw),
		)
		if err != nil {
			return fmt.Errorf("upsert transaction: %w", err)
		}
		return nil
	})
}

// GetTransactionsByDate возвращает чеки, начатые в указанный день (UTC).
func (r *PostgresRepository) GetTransactionsByDate(ctx context.Context, date time.Time) ([]model.Transaction, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.pool.Query(ctx,
		`SELECT transaction_id, date_start, date_close, status, sum, payed_sum,
			payed_cash, payed_card, payed_bonus, payed_third_party, payed_cert,
			spot_id, table_id, user_id, client_id, service_mode, processing_status, raw
		 FROM transactions
		 WHERE date_start >= $1 AND date_start < $2
		 ORDER BY date_start`,
		dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			tx  model.Transaction
			raw []byte
		)
		if err := rows.Scan(
			&tx.TransactionID, &tx.DateStart, &tx.DateClose, &tx.Status, &tx.Sum, &tx.PayedSum,
			&tx.PayedCash, &tx.PayedCard, &tx.PayedBonus, &tx.PayedThirdParty, &tx.PayedCert,
			&tx.SpotID, &tx.TableID, &tx.UserID, &tx.ClientID, &tx.ServiceMode, &tx.ProcessingStatus, &raw,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Raw = json.RawMessage(raw)
		res = append(res, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpsertDailyReport сохраняет дневную сводку по дате.
func (r *PostgresRepository) UpsertDailyReport(ctx context.Context, report model.DailyReport) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO daily_reports (
				date, transactions_count, revenue, avg_check,
				raw_transactions, raw_payments, raw_products_sales
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (date) DO UPDATE SET
				transactions_count = EXCLUDED.transactions_count,
				revenue = EXCLUDED.revenue,
				avg_check = EXCLUDED.avg_check,
				raw_transactions = EXCLUDED.raw_transactions,
				raw_payments = EXCLUDED.raw_payments,
				raw_products_sales = EXCLUDED.raw_products_sales,
				updated_at = now()`,
			report.Date, report.TransactionsCount, report.Revenue, report.AvgCheck,
			rawOrEmpty(report.RawTransactions), rawOrEmpty(report.RawPayments), rawOrEmpty(report.RawProductsSales),
		)
		if err != nil {
			return fmt.Errorf("upsert daily report: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) scanDailyReport(row pgx.Row) (*model.DailyReport, error) {
	var (
		report                            model.DailyReport
		rawTx, rawPayments, rawProdsSales []byte
	)
	err := row.Scan(
		&report.Date, &report.TransactionsCount, &report.Revenue, &report.AvgCheck,
		&rawTx, &rawPayments, &rawProdsSales,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan daily report: %w", err)
	}

	report.RawTransactions = json.RawMessage(rawTx)
	report.RawPayments = json.RawMessage(rawPayments)
	report.RawProductsSales = json.RawMessage(rawProdsSales)
	return &report, nil
}

// GetDailyReport возвращает сводку за указанную дату.
func (r *PostgresRepository) GetDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT date, transactions_count, revenue, avg_check,
			raw_transactions, raw_payments, raw_products_sales
		 FROM daily_reports WHERE date = $1`,
		date,
	)
	return r.scanDailyReport(row)
}

// GetPreviousDailyReport возвращает ближайшую сводку строго раньше указанной даты.
func (r *PostgresRepository) GetPreviousDailyReport(ctx context.Context, date time.Time) (*model.DailyReport, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT date, transactions_count, revenue, avg_check,
			raw_transactions, raw_payments, raw_products_sales
		 FROM daily_reports WHERE date < $1
		 ORDER BY date DESC LIMIT 1`,
		date,
	)
	return r.scanDailyReport(row)
}

// GetDailyReports возвращает сводки за период в порядке возрастания дат.
func (r *PostgresRepository) GetDailyReports(ctx context.Context, dateFrom, dateTo time.Time) ([]model.DailyReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, transactions_count, revenue, avg_check,
			raw_transactions, raw_payments, raw_products_sales
		 FROM daily_reports
		 WHERE date >= $1 AND date <= $2
		 ORDER BY date`,
		dateFrom, dateTo,
	)
	if err != nil {
		return nil, fmt.Errorf("select daily reports: %w", err)
	}
	defer rows.Close()

	var res []model.DailyReport
	for rows.Next() {
		var (
			report                            model.DailyReport
			rawTx, rawPayments, rawProdsSales []byte
		)
		if err := rows.Scan(
			&report.Date, &report.TransactionsCount, &report.Revenue, &report.AvgCheck,
			&rawTx, &rawPayments, &rawProdsSales,
		); err != nil {
			return nil, fmt.Errorf("scan daily report: %w", err)
		}
		report.RawTransactions = json.RawMessage(rawTx)
		report.RawPayments = json.RawMessage(rawPayments)
		report.RawProductsSales = json.RawMessage(rawProdsSales)
		res = append(res, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) upsertRawReport(ctx context.Context, table string, date time.Time, raw json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+table+` (date, raw) VALUES ($1, $2)
		 ON CONFLICT (date) DO UPDATE SET raw = EXCLUDED.raw, updated_at = now()`,
		date, rawOrEmpty(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// UpsertPaymentsReport сохраняет сырой отчёт по оплатам за дату.
func (r *PostgresRepository) UpsertPaymentsReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	return r.upsertRawReport(ctx, "payments_reports", date, raw)
}

// UpsertProductsSalesReport сохраняет сырой отчёт продаж по товарам за дату.
func (r *PostgresRepository) UpsertProductsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	return r.upsertRawReport(ctx, "products_sales_reports", date, raw)
}

// UpsertSpotsSalesReport сохраняет сырой отчёт продаж по точкам за дату.
func (r *PostgresRepository) UpsertSpotsSalesReport(ctx context.Context, date time.Time, raw json.RawMessage) error {
	return r.upsertRawReport(ctx, "spots_sales_reports", date, raw)
}

// GetSpotsSalesReport возвращает сырой отчёт продаж по точкам за дату.
func (r *PostgresRepository) GetSpotsSalesReport(ctx context.Context, date time.Time) (json.RawMessage, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT raw FROM spots_sales_reports WHERE date = $1`,
		date,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select spots sales report: %w", err)
	}
	return json.RawMessage(raw), nil
}

// GetIgnoredIssueKeys возвращает ключи аномалий за дату, помеченных как
// проигнорированные человеком.
func (r *PostgresRepository) GetIgnoredIssueKeys(ctx context.Context, date time.Time) (map[model.IssueKey]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT issue_type, transaction_id FROM data_issues WHERE date = $1 AND ignored`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("select ignored issues: %w", err)
	}
	defer rows.Close()

	keys := make(map[model.IssueKey]struct{})
	for rows.Next() {
		var key model.IssueKey
		if err := rows.Scan(&key.IssueType, &key.TransactionID); err != nil {
			return nil, fmt.Errorf("scan issue key: %w", err)
		}
		keys[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return keys, nil
}

// ReplaceOpenIssues удаляет все непроигнорированные аномалии за дату и
// записывает новый набор одной транзакцией. Проигнорированные строки не трогает.
func (r *PostgresRepository) ReplaceOpenIssues(ctx context.Context, date time.Time, issues []model.DataIssue) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM data_issues WHERE date = $1 AND NOT ignored`,
		date,
	); err != nil {
		return fmt.Errorf("delete open issues: %w", err)
	}

	for _, issue := range issues {
		if _, err := tx.Exec(ctx,
			`INSERT INTO data_issues (date, issue_type, transaction_id, severity, message, context)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			issue.Date, issue.IssueType, issue.TransactionID, issue.Severity, issue.Message, rawOrEmpty(issue.Context),
		); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetOpenIssues возвращает непроигнорированные аномалии за дату.
func (r *PostgresRepository) GetOpenIssues(ctx context.Context, date time.Time) ([]model.DataIssue, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, issue_type, transaction_id, severity, message, context, ignored, ignored_at
		 FROM data_issues
		 WHERE date = $1 AND NOT ignored
		 ORDER BY id`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}
	defer rows.Close()

	var res []model.DataIssue
	for rows.Next() {
		var (
			issue  model.DataIssue
			rawCtx []byte
		)
		if err := rows.Scan(
			&issue.Date, &issue.IssueType, &issue.TransactionID, &issue.Severity,
			&issue.Message, &rawCtx, &issue.Ignored, &issue.IgnoredAt,
		); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.Context = json.RawMessage(rawCtx)
		res = append(res, issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReplaceInsights полностью заменяет инсайты за дату.
func (r *PostgresRepository) ReplaceInsights(ctx context.Context, date time.Time, insights []model.Insight) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM insights WHERE date = $1`, date); err != nil {
		return fmt.Errorf("delete insights: %w", err)
	}

	for _, insight := range insights {
		if _, err := tx.Exec(ctx,
			`INSERT INTO insights (date, title, severity, details) VALUES ($1, $2, $3, $4)`,
			insight.Date, insight.Title, insight.Severity, insight.Details,
		); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

type templateConfig struct {
	Metrics []string `json:"metrics"`
}

// UpsertReportTemplate сохраняет именованный шаблон отчёта.
func (r *PostgresRepository) UpsertReportTemplate(ctx context.Context, tmpl model.ReportTemplate) error {
	config, err := json.Marshal(templateConfig{Metrics: tmpl.Metrics})
	if err != nil {
		return fmt.Errorf("encode template config: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO report_templates (name, config) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		tmpl.Name, config,
	)
	if err != nil {
		return fmt.Errorf("upsert report template: %w", err)
	}
	return nil
}

// GetReportTemplate возвращает шаблон отчёта по имени.
func (r *PostgresRepository) GetReportTemplate(ctx context.Context, name string) (*model.ReportTemplate, error) {
	var config []byte
	err := r.pool.QueryRow(ctx,
		`SELECT config FROM report_templates WHERE name = $1`,
		name,
	).Scan(&config)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select report template: %w", err)
	}

	var cfg templateConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("decode template config: %w", err)
	}

	return &model.ReportTemplate{Name: name, Metrics: cfg.Metrics}, nil
}
