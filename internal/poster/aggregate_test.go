package poster

import (
	"encoding/json"
	"testing"
)

func TestParseSpotsAggregate_Totals(t *testing.T) {
	raw := json.RawMessage(`{
		"response": {
			"revenue": "1234.50",
			"clients": 5,
			"middle_invoice": "246.90"
		}
	}`)

	agg := ParseSpotsAggregate(raw)
	if agg.Total == nil {
		t.Fatalf("expected totals variant, got %+v", agg)
	}
	if agg.RowsTopLevel {
		t.Fatalf("totals variant must not be marked as top-level rows")
	}
	if agg.Total.Revenue.String() != "1234.5" {
		t.Fatalf("revenue = %s, want 1234.5", agg.Total.Revenue)
	}
	if agg.Total.Transactions != 5 {
		t.Fatalf("transactions = %d, want 5", agg.Total.Transactions)
	}
	if agg.Total.MiddleInvoice == nil || agg.Total.MiddleInvoice.String() != "246.9" {
		t.Fatalf("unexpected middle invoice: %v", agg.Total.MiddleInvoice)
	}
}

func TestParseSpotsAggregate_TotalsFallbackToTransactionsCount(t *testing.T) {
	raw := json.RawMessage(`{
		"response": {
			"revenue": 100,
			"clients": 0,
			"transactions_count": 7
		}
	}`)

	agg := ParseSpotsAggregate(raw)
	if agg.Total == nil {
		t.Fatalf("expected totals variant, got %+v", agg)
	}
	if agg.Total.Transactions != 7 {
		t.Fatalf("transactions = %d, want 7 from transactions_count", agg.Total.Transactions)
	}
}

func TestParseSpotsAggregate_TopLevelRows(t *testing.T) {
	raw := json.RawMessage(`{
		"response": [
			{"spot_id": 1, "revenue": 30000, "clients": 3, "returns_count": 1, "returns_sum": -500},
			{"id": "2", "sum": "20000", "count": 2}
		]
	}`)

	agg := ParseSpotsAggregate(raw)
	if agg.Total != nil {
		t.Fatalf("unexpected totals: %+v", agg.Total)
	}
	if !agg.RowsTopLevel {
		t.Fatalf("top-level list must set RowsTopLevel")
	}
	if len(agg.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(agg.Rows))
	}

	first := agg.Rows[0]
	if first.SpotID != "1" || first.Revenue != 30000 || first.Clients != 3 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.Returns != 1 || first.ReturnsSum != -500 {
		t.Fatalf("unexpected returns in first row: %+v", first)
	}

	second := agg.Rows[1]
	if second.SpotID != "2" || second.Revenue != 20000 || second.Transactions != 2 {
		t.Fatalf("alias keys id/sum/count must be picked up: %+v", second)
	}
}

func TestParseSpotsAggregate_NestedSpots(t *testing.T) {
	raw := json.RawMessage(`{
		"response": {
			"revenue": 500,
			"spots": [
				{"spot_id": "1", "revenue": 30000, "transactions_count": 3}
			]
		}
	}`)

	agg := ParseSpotsAggregate(raw)
	if agg.Total == nil {
		t.Fatalf("expected totals alongside nested spots")
	}
	if agg.RowsTopLevel {
		t.Fatalf("nested spots must not be marked as top-level rows")
	}
	if len(agg.Rows) != 1 || agg.Rows[0].SpotID != "1" || agg.Rows[0].Transactions != 3 {
		t.Fatalf("unexpected rows: %+v", agg.Rows)
	}
}

func TestParseSpotsAggregate_UnrecognizedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"null", "null"},
		{"invalid json", "{oops"},
		{"scalar response", `{"response": 42}`},
		{"no revenue key", `{"response": {"clients": 5}}`},
		{"null revenue", `{"response": {"revenue": null}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := ParseSpotsAggregate(json.RawMessage(tt.raw))
			if agg.Total != nil || len(agg.Rows) != 0 || agg.RowsTopLevel {
				t.Fatalf("expected empty aggregate, got %+v", agg)
			}
		})
	}
}
