package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"landiq/internal/model"
	"landiq/internal/repository"
)

func testInput() *model.PropertyInput {
	return &model.PropertyInput{
		PropertyDescription: "160 acres of irrigated corn ground with pivot and well",
		Acreage:             160,
		Location:            "Hamilton County, NE",
		Irrigated:           true,
		Tillable:            true,
		CropType:            "Corn",
	}
}

func newTestValuationService(t *testing.T, provider *fakeProvider) (*ValuationService, *repository.MemoryValuationRepository) {
	t.Helper()
	store := repository.NewMemoryValuationRepository()
	cfg := provider.config()
	return NewValuationService(store, NewOpenAIClient(cfg), cfg), store
}

func TestGenerateValuation_ToolCallResult(t *testing.T) {
	args := `{
		"property": {"location": "Hamilton County, NE", "acreage": 160, "features": ["Irrigated", "Tillable"]},
		"valuation": {"p10": 9000, "p50": 10500, "p90": 12000, "confidence": 0.85},
		"analysis": {"narrative": "Strong irrigated ground market.\nNote: estimates only.", "keyFactors": ["Irrigation", "Soil quality"], "confidence": 0.85},
		"comparableSales": [
			{"description": "Quarter section", "location": "Aurora, NE", "date": "2024-03", "pricePerAcre": 10000, "totalPrice": 1600000, "acreage": 160, "features": ["Irrigated"]},
			{"description": "Derive total", "location": "York, NE", "date": "2024-05", "pricePerAcre": 9500, "acreage": 80},
			{"description": "Zero acreage", "location": "Polk, NE", "date": "2024-06", "totalPrice": 100000, "acreage": 0}
		],
		"sources": [{"title": "Land Values Survey", "organization": "UNL", "url": "https://example.edu/survey"}]
	}`
	provider := newFakeProvider(t, assistantToolCall("call_1", "valuation_result", args))
	svc, _ := newTestValuationService(t, provider)

	result, err := svc.GenerateValuation(context.Background(), testInput())
	if err != nil {
		t.Fatalf("GenerateValuation() error = %v", err)
	}

	if result.Valuation.P50 != 10500 {
		t.Errorf("P50 = %v, want 10500", result.Valuation.P50)
	}
	// pricePerAcre defaults to P50, totalValue to round(P50 x acreage)
	if result.Valuation.PricePerAcre != 10500 {
		t.Errorf("PricePerAcre = %v, want 10500", result.Valuation.PricePerAcre)
	}
	if result.Valuation.TotalValue != 1680000 {
		t.Errorf("TotalValue = %v, want 1680000", result.Valuation.TotalValue)
	}
	if result.Valuation.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", result.Valuation.Confidence)
	}

	// Trailing note stripped from the narrative
	if result.Analysis.Narrative != "Strong irrigated ground market." {
		t.Errorf("Narrative = %q", result.Analysis.Narrative)
	}

	// One complete comp kept, one derived, the zero-acreage one dropped
	if len(result.ComparableSales) != 2 {
		t.Fatalf("ComparableSales = %d entries, want 2: %+v", len(result.ComparableSales), result.ComparableSales)
	}
	derived := result.ComparableSales[1]
	if derived.TotalPrice != 760000 {
		t.Errorf("derived TotalPrice = %v, want 760000", derived.TotalPrice)
	}

	if len(result.Sources) != 1 {
		t.Errorf("Sources = %d entries, want 1", len(result.Sources))
	}
	if result.Timestamp == "" {
		t.Error("Timestamp is empty")
	}
	if _, err := time.Parse(time.RFC3339, result.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", result.Timestamp, err)
	}
}

func TestGenerateValuation_EmbeddedJSON(t *testing.T) {
	content := "Here is my analysis based on recent sales:\n```json\n" +
		`{"property": {"location": "Hamilton County, NE", "acreage": 160},` +
		`"valuation": {"p10": 8,000, "p50": 9,500, "p90": 11,000},` +
		`"analysis": {"narrative": "Solid demand for irrigated quarters.", "keyFactors": ["Irrigation"]}}` +
		"\n```"
	provider := newFakeProvider(t, assistantText(content))
	svc, _ := newTestValuationService(t, provider)

	result, err := svc.GenerateValuation(context.Background(), testInput())
	if err != nil {
		t.Fatalf("GenerateValuation() error = %v", err)
	}

	if result.Valuation.P50 != 9500 {
		t.Errorf("P50 = %v, want 9500 (thousands separators repaired)", result.Valuation.P50)
	}
	if result.Valuation.PricePerAcre != 9500 {
		t.Errorf("PricePerAcre = %v, want 9500", result.Valuation.PricePerAcre)
	}
	if result.Valuation.TotalValue != 1520000 {
		t.Errorf("TotalValue = %v, want 1520000", result.Valuation.TotalValue)
	}
	// Confidence defaults when the provider omits it
	if result.Valuation.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", result.Valuation.Confidence)
	}
	if result.Analysis.Confidence != 0.75 {
		t.Errorf("Analysis.Confidence = %v, want 0.75", result.Analysis.Confidence)
	}
}

func TestGenerateValuation_FallbackFromProse(t *testing.T) {
	prose := "Farmland in the area has been trading briskly, though I could not assemble exact figures."
	provider := newFakeProvider(t, assistantText(prose))
	svc, _ := newTestValuationService(t, provider)

	result, err := svc.GenerateValuation(context.Background(), testInput())
	if err != nil {
		t.Fatalf("GenerateValuation() error = %v", err)
	}

	v := result.Valuation
	if v.P10 != 7000 || v.P50 != 8500 || v.P90 != 10000 {
		t.Errorf("fallback percentiles = %v/%v/%v, want 7000/8500/10000", v.P10, v.P50, v.P90)
	}
	if !(v.P10 <= v.P50 && v.P50 <= v.P90) {
		t.Error("fallback percentiles are not ordered")
	}
	if v.TotalValue != 1360000 {
		t.Errorf("TotalValue = %v, want round(8500 x 160) = 1360000", v.TotalValue)
	}
	if v.PricePerAcre != 8500 {
		t.Errorf("PricePerAcre = %v, want 8500", v.PricePerAcre)
	}
	if result.Analysis.Narrative != prose {
		t.Errorf("Narrative = %q, want the provider prose", result.Analysis.Narrative)
	}
	if len(result.ComparableSales) != 0 {
		t.Errorf("ComparableSales = %d entries, want 0", len(result.ComparableSales))
	}

	wantFeatures := []string{"Irrigated", "Tillable", "Corn"}
	if len(result.Property.Features) != len(wantFeatures) {
		t.Fatalf("Features = %v, want %v", result.Property.Features, wantFeatures)
	}
}

func TestGenerateValuation_FallbackTemplatedNarrative(t *testing.T) {
	provider := newFakeProvider(t, assistantText(""))
	svc, _ := newTestValuationService(t, provider)

	result, err := svc.GenerateValuation(context.Background(), testInput())
	if err != nil {
		t.Fatalf("GenerateValuation() error = %v", err)
	}

	narrative := result.Analysis.Narrative
	if narrative == "" {
		t.Fatal("Narrative is empty, want templated sentence")
	}
	if !strings.Contains(narrative, "Hamilton County, NE") {
		t.Errorf("Narrative %q does not cite the location", narrative)
	}
	if !strings.Contains(narrative, "160") {
		t.Errorf("Narrative %q does not cite the acreage", narrative)
	}
	if !strings.Contains(narrative, "irrigated") {
		t.Errorf("Narrative %q does not cite the irrigation class", narrative)
	}
}

func TestGenerateValuation_ProviderError(t *testing.T) {
	// No canned responses: every call returns 500
	provider := newFakeProvider(t)
	svc, _ := newTestValuationService(t, provider)

	_, err := svc.GenerateValuation(context.Background(), testInput())
	if err == nil {
		t.Fatal("GenerateValuation() error = nil, want GenerationError")
	}

	var genErr *model.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error %T is not a GenerationError", err)
	}
}

func TestGenerateValuation_WebSearchToggle(t *testing.T) {
	provider := newFakeProvider(t, assistantText("no structure here"))
	store := repository.NewMemoryValuationRepository()
	cfg := provider.config()
	cfg.WebSearch = true
	svc := NewValuationService(store, NewOpenAIClient(cfg), cfg)

	if _, err := svc.GenerateValuation(context.Background(), testInput()); err != nil {
		t.Fatalf("GenerateValuation() error = %v", err)
	}

	req := provider.request(0)
	if len(req.Tools) != 5 {
		t.Fatalf("request carried %d tools, want 5 (web search + 4 functions)", len(req.Tools))
	}
	if req.Tools[0].Type != "web_search" {
		t.Errorf("first tool type = %q, want web_search", req.Tools[0].Type)
	}
}

func TestAppraise_PersistsFlattenedRow(t *testing.T) {
	args := `{
		"property": {"location": "Hamilton County, NE", "acreage": 160},
		"valuation": {"p10": 9000, "p50": 10500, "p90": 12000, "totalValue": 1700000, "pricePerAcre": 10600, "confidence": 0.9},
		"analysis": {"narrative": "Report body.", "keyFactors": ["Irrigation"]}
	}`
	provider := newFakeProvider(t, assistantToolCall("call_1", "valuation_result", args))
	svc, store := newTestValuationService(t, provider)

	result, row, err := svc.Appraise(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Appraise() error = %v", err)
	}

	if row.ID == 0 {
		t.Error("stored row has no assigned id")
	}
	if row.Acreage != "160" {
		t.Errorf("row.Acreage = %q, want decimal text \"160\"", row.Acreage)
	}
	if row.Confidence != "0.9" {
		t.Errorf("row.Confidence = %q, want \"0.9\"", row.Confidence)
	}
	if row.P50 != result.Valuation.P50 {
		t.Errorf("row.P50 = %v, want %v", row.P50, result.Valuation.P50)
	}
	if row.CropType == nil || *row.CropType != "Corn" {
		t.Errorf("row.CropType = %v, want Corn", row.CropType)
	}

	fetched, err := store.GetValuation(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("GetValuation() error = %v", err)
	}
	if fetched == nil {
		t.Fatal("stored valuation not found")
	}
	if fetched.Narrative != "Report body." {
		t.Errorf("fetched.Narrative = %q", fetched.Narrative)
	}
}

func TestNormalizeComparableSales(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   rawComparableSale
		want *model.ComparableSale
	}{
		{
			name: "Complete entry kept",
			in:   rawComparableSale{PricePerAcre: f(8000), TotalPrice: f(640000), Acreage: f(80)},
			want: &model.ComparableSale{PricePerAcre: 8000, TotalPrice: 640000, Acreage: 80},
		},
		{
			name: "Missing pricePerAcre derived",
			in:   rawComparableSale{TotalPrice: f(640000), Acreage: f(80)},
			want: &model.ComparableSale{PricePerAcre: 8000, TotalPrice: 640000, Acreage: 80},
		},
		{
			name: "Missing totalPrice derived",
			in:   rawComparableSale{PricePerAcre: f(8000), Acreage: f(80)},
			want: &model.ComparableSale{PricePerAcre: 8000, TotalPrice: 640000, Acreage: 80},
		},
		{
			name: "Missing acreage derived",
			in:   rawComparableSale{PricePerAcre: f(8000), TotalPrice: f(640000)},
			want: &model.ComparableSale{PricePerAcre: 8000, TotalPrice: 640000, Acreage: 80},
		},
		{
			name: "Zero acreage with no pricePerAcre dropped",
			in:   rawComparableSale{TotalPrice: f(100000), Acreage: f(0)},
			want: nil,
		},
		{
			name: "Negative price treated as missing and derived",
			in:   rawComparableSale{PricePerAcre: f(-100), TotalPrice: f(640000), Acreage: f(80)},
			want: &model.ComparableSale{PricePerAcre: 8000, TotalPrice: 640000, Acreage: 80},
		},
		{
			name: "Negative price with no total dropped",
			in:   rawComparableSale{PricePerAcre: f(-100), Acreage: f(80)},
			want: nil,
		},
		{
			name: "Only one member dropped",
			in:   rawComparableSale{PricePerAcre: f(8000)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeComparableSales([]rawComparableSale{tt.in}, "Hamilton County, NE")

			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("normalizeComparableSales() kept %+v, want dropped", got)
				}
				return
			}

			if len(got) != 1 {
				t.Fatalf("normalizeComparableSales() = %d entries, want 1", len(got))
			}
			sale := got[0]
			if sale.PricePerAcre != tt.want.PricePerAcre || sale.TotalPrice != tt.want.TotalPrice || sale.Acreage != tt.want.Acreage {
				t.Errorf("got %v/%v/%v, want %v/%v/%v",
					sale.PricePerAcre, sale.TotalPrice, sale.Acreage,
					tt.want.PricePerAcre, tt.want.TotalPrice, tt.want.Acreage)
			}
			// Absent descriptive fields get the documented defaults
			if sale.Description == "" || sale.Location == "" || sale.Date == "" {
				t.Errorf("descriptive defaults missing: %+v", sale)
			}
		})
	}
}
