package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mmeshcher/poster-reports/internal/model"
)

func TestDailySummaryBySpot_PrefersStoredReport(t *testing.T) {
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	repo := newStubRepo()
	repo.spotsReports["2026-02-14"] = json.RawMessage(`{
		"response": {
			"revenue": 500,
			"spots": [
				{"spot_id": "1", "revenue": 30000, "transactions_count": 3, "returns_count": 1, "returns_sum": -500},
				{"spot_id": "", "revenue": 100}
			]
		}
	}`)
	// Чеки не должны использоваться, пока сводка даёт строки.
	repo.transactions["900"] = model.Transaction{
		TransactionID: "900",
		DateStart:     timePtr(day.Add(10 * time.Hour)),
		SpotID:        "9",
		Sum:           7777,
	}

	svc := NewService(repo)

	summary, err := svc.DailySummaryBySpot(context.Background(), day)
	if err != nil {
		t.Fatalf("DailySummaryBySpot error: %v", err)
	}
	if len(summary) != 1 {
		t.Fatalf("summary size = %d, want 1: %+v", len(summary), summary)
	}

	item := summary["1"]
	if item.Transactions != 3 || item.Revenue != 30000 || item.Returns != 1 || item.ReturnsSum != -500 {
		t.Fatalf("unexpected summary for spot 1: %+v", item)
	}
}

func TestDailySummaryBySpot_FallbackToTransactions(t *testing.T) {
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	repo := newStubRepo()
	repo.transactions["901"] = model.Transaction{
		TransactionID: "901",
		DateStart:     timePtr(day.Add(10 * time.Hour)),
		SpotID:        "1",
		Status:        model.TransactionStatusClosed,
		Sum:           10000,
	}
	repo.transactions["902"] = model.Transaction{
		TransactionID: "902",
		DateStart:     timePtr(day.Add(11 * time.Hour)),
		SpotID:        "1",
		Status:        model.TransactionStatusReturn,
		Sum:           5000,
	}
	repo.transactions["903"] = model.Transaction{
		TransactionID: "903",
		DateStart:     timePtr(day.Add(12 * time.Hour)),
		SpotID:        "",
		Status:        model.TransactionStatusClosed,
		Sum:           -2000,
	}

	svc := NewService(repo)

	summary, err := svc.DailySummaryBySpot(context.Background(), day)
	if err != nil {
		t.Fatalf("DailySummaryBySpot error: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary size = %d, want 2: %+v", len(summary), summary)
	}

	spot := summary["1"]
	if spot.Transactions != 2 || spot.Revenue != 15000 {
		t.Fatalf("unexpected summary for spot 1: %+v", spot)
	}
	if spot.Returns != 1 || spot.ReturnsSum != 5000 {
		t.Fatalf("return with return status not counted: %+v", spot)
	}

	unknown := summary["unknown"]
	if unknown.Transactions != 1 || unknown.Revenue != -2000 {
		t.Fatalf("unexpected summary for unknown spot: %+v", unknown)
	}
	if unknown.Returns != 1 || unknown.ReturnsSum != -2000 {
		t.Fatalf("negative sum must count as return: %+v", unknown)
	}
}

func TestDailySummaryBySpot_EmptyReportFallsBack(t *testing.T) {
	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	repo := newStubRepo()
	repo.spotsReports["2026-02-14"] = json.RawMessage(`{"response": {"revenue": 500}}`)
	repo.transactions["904"] = model.Transaction{
		TransactionID: "904",
		DateStart:     timePtr(day.Add(10 * time.Hour)),
		SpotID:        "2",
		Status:        model.TransactionStatusClosed,
		Sum:           3000,
	}

	svc := NewService(repo)

	summary, err := svc.DailySummaryBySpot(context.Background(), day)
	if err != nil {
		t.Fatalf("DailySummaryBySpot error: %v", err)
	}
	if len(summary) != 1 {
		t.Fatalf("summary size = %d, want 1: %+v", len(summary), summary)
	}
	if item := summary["2"]; item.Transactions != 1 || item.Revenue != 3000 {
		t.Fatalf("unexpected summary for spot 2: %+v", item)
	}
}
