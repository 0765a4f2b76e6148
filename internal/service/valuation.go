package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"landiq/internal/config"
	"landiq/internal/model"
	"landiq/internal/utils"
)

// Deterministic per-acre defaults used when the provider returns nothing
// structured. The ordering 7000 <= 8500 <= 10000 keeps the percentile
// invariant on the fallback path.
const (
	fallbackP10        = 7000
	fallbackP50        = 8500
	fallbackP90        = 10000
	fallbackConfidence = 0.7
	defaultConfidence  = 0.75
)

// ValuationStore is the persistence gateway the valuation service writes to
// and reads from
type ValuationStore interface {
	CreateValuation(ctx context.Context, v *model.Valuation) (*model.Valuation, error)
	GetValuation(ctx context.Context, id int64) (*model.Valuation, error)
	GetRecentValuations(ctx context.Context, limit int) ([]model.Valuation, error)
	GetValuationsByLocation(ctx context.Context, location string, limit int) ([]model.Valuation, error)
}

// ValuationService produces land valuations via the AI provider and persists
// the completed results
type ValuationService struct {
	store  ValuationStore
	ai     *OpenAIClient
	openai *config.OpenAIConfig
}

// NewValuationService creates a new valuation service
func NewValuationService(store ValuationStore, ai *OpenAIClient, cfg *config.OpenAIConfig) *ValuationService {
	return &ValuationService{
		store:  store,
		ai:     ai,
		openai: cfg,
	}
}

// valuationTools are the named callable functions the provider may invoke
// instead of answering directly
func valuationTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "parse_property_input",
				Description: "Extract location, acreage, crop type, and irrigation from raw user input",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rawInput": map[string]any{"type": "string"},
					},
					"required": []string{"rawInput"},
				},
			},
		},
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "calculate_valuation",
				Description: "Estimate a value range based on reasoning over comp summaries from web search",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"compSummaries": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"targetAcreage": map[string]any{"type": "number"},
						"location":      map[string]any{"type": "string"},
						"irrigated":     map[string]any{"type": "boolean"},
					},
					"required": []string{"compSummaries", "targetAcreage", "location"},
				},
			},
		},
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "generate_narrative",
				Description: "Explain the valuation result and logic in natural language",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"valuationData": map[string]any{"type": "object"},
						"userInput":     map[string]any{"type": "string"},
					},
					"required": []string{"valuationData"},
				},
			},
		},
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "valuation_result",
				Description: "Return the full land valuation result including comparable sales and sources",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"property":        map[string]any{"type": "object"},
						"valuation":       map[string]any{"type": "object"},
						"analysis":        map[string]any{"type": "object"},
						"comparableSales": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
						"sources":         map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
					},
					"required": []string{"property", "valuation", "analysis"},
				},
			},
		},
	}
}

// rawValuationPayload mirrors the target JSON shape requested from the
// provider. Pointer fields distinguish absent values from zeros so the
// normalization step can fill them from siblings.
type rawValuationPayload struct {
	Property struct {
		Location  string   `json:"location"`
		Acreage   float64  `json:"acreage"`
		CropType  string   `json:"cropType"`
		Irrigated *bool    `json:"irrigated"`
		Tillable  *bool    `json:"tillable"`
		Features  []string `json:"features"`
	} `json:"property"`
	Valuation struct {
		P10          float64  `json:"p10"`
		P50          float64  `json:"p50"`
		P90          float64  `json:"p90"`
		TotalValue   *float64 `json:"totalValue"`
		PricePerAcre *float64 `json:"pricePerAcre"`
		Confidence   *float64 `json:"confidence"`
	} `json:"valuation"`
	Analysis struct {
		Narrative  string   `json:"narrative"`
		KeyFactors []string `json:"keyFactors"`
		Confidence *float64 `json:"confidence"`
	} `json:"analysis"`
	ComparableSales []rawComparableSale `json:"comparableSales"`
	Sources         []model.WebSource   `json:"sources"`
}

// empty reports whether the payload carries none of the expected sections
func (p *rawValuationPayload) empty() bool {
	return p.Valuation.P10 == 0 && p.Valuation.P50 == 0 && p.Valuation.P90 == 0 &&
		p.Analysis.Narrative == "" && p.Property.Location == ""
}

type rawComparableSale struct {
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Date         string   `json:"date"`
	PricePerAcre *float64 `json:"pricePerAcre"`
	TotalPrice   *float64 `json:"totalPrice"`
	Acreage      *float64 `json:"acreage"`
	Features     []string `json:"features"`
	SourceURL    string   `json:"sourceUrl"`
}

// GenerateValuation invokes the AI provider with the property details and
// returns a normalized valuation result. Provider/network failures surface as
// a GenerationError; garbled provider output never aborts the call and
// degrades to a deterministic fallback instead.
func (s *ValuationService) GenerateValuation(ctx context.Context, input *model.PropertyInput) (*model.ValuationResult, error) {
	prompt := buildValuationPrompt(input)

	tools := valuationTools()
	if s.openai.WebSearch {
		tools = append([]Tool{{Type: "web_search"}}, tools...)
	}

	req := ChatCompletionRequest{
		Model: s.openai.ChatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: "You are a professional agricultural land appraiser with access to current farmland market data."},
			{Role: "user", Content: prompt},
		},
		Tools:      tools,
		ToolChoice: "auto",
	}

	resp, err := s.ai.ChatCompletion(ctx, req)
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &model.GenerationError{Err: fmt.Errorf("no response from provider")}
	}

	message := resp.Choices[0].Message
	content := message.Content

	// Prefer a direct structured tool invocation over free-text extraction
	var parsed *rawValuationPayload
	for _, call := range message.ToolCalls {
		if call.Function.Name != "valuation_result" {
			continue
		}
		var payload rawValuationPayload
		if err := utils.ParseAIJSON(call.Function.Arguments, &payload); err != nil {
			log.Printf("Warning: Failed to parse valuation_result tool call: %v", err)
			continue
		}
		parsed = &payload
		break
	}

	// Otherwise scan the free-text answer for an embedded JSON object. A
	// JSON fragment with none of the expected sections counts as garbled
	// output and degrades to the fallback.
	if parsed == nil && content != "" {
		var payload rawValuationPayload
		if err := utils.ParseAIJSON(content, &payload); err == nil && !payload.empty() {
			parsed = &payload
		} else if err != nil {
			log.Printf("Warning: No structured valuation in provider answer: %v", err)
		}
	}

	var result *model.ValuationResult
	if parsed != nil {
		result = s.normalizeValuation(parsed, input, content)
	} else {
		result = s.fallbackValuation(input, content)
	}

	result.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return result, nil
}

// Appraise runs the full create path: generate a valuation via the provider
// and persist the completed result, returning both the public result and the
// stored row
func (s *ValuationService) Appraise(ctx context.Context, input *model.PropertyInput) (*model.ValuationResult, *model.Valuation, error) {
	result, err := s.GenerateValuation(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	row := flattenValuation(input, result)
	stored, err := s.store.CreateValuation(ctx, row)
	if err != nil {
		return nil, nil, err
	}

	return result, stored, nil
}

// ValuationByID retrieves a single stored valuation, (nil, nil) when absent
func (s *ValuationService) ValuationByID(ctx context.Context, id int64) (*model.Valuation, error) {
	return s.store.GetValuation(ctx, id)
}

// RecentValuations returns up to limit rows, most recent first
func (s *ValuationService) RecentValuations(ctx context.Context, limit int) ([]model.Valuation, error) {
	return s.store.GetRecentValuations(ctx, limit)
}

// ValuationsByLocation returns up to limit rows whose location exactly equals
// the argument, most recent first
func (s *ValuationService) ValuationsByLocation(ctx context.Context, location string, limit int) ([]model.Valuation, error) {
	return s.store.GetValuationsByLocation(ctx, location, limit)
}

// buildValuationPrompt composes the appraiser instruction embedding all input
// fields plus the explicit target JSON shape
func buildValuationPrompt(input *model.PropertyInput) string {
	irrigated := "No - dryland farming"
	if input.Irrigated {
		irrigated = "Yes - with irrigation infrastructure"
	}
	tillable := "No - pasture or non-tillable"
	if input.Tillable {
		tillable = "Yes - suitable for row crops"
	}
	cropType := input.CropType
	if cropType == "" {
		cropType = "Mixed agricultural use"
	}
	landClass := "dryland"
	if input.Irrigated {
		landClass = "irrigated"
	}

	return fmt.Sprintf(`As a professional agricultural land appraiser, please search for recent farmland sales data and provide a comprehensive valuation for this property:

Property Description: %s

Property Details:
- Location: %s
- Acreage: %g
- Irrigated: %s
- Tillable: %s
- Crop Type: %s

Please search for and analyze:
1. Recent farmland sales in %s from the last two years
2. Current market prices for %s farmland in this area
3. Regional land value trends and market conditions
4. Comparable properties of similar size (%g acres) and characteristics

Based on your findings, provide a complete valuation analysis as a clean JSON object. IMPORTANT: In the "narrative" field, write a clear, professional explanation in plain English without any JSON formatting, code blocks, or technical markup. The narrative should read like a professional appraiser's report.

{
  "property": {
    "location": "%s",
    "acreage": %g,
    "cropType": "%s",
    "irrigated": %t,
    "tillable": %t,
    "features": ["list of key property features"]
  },
  "valuation": {
    "p10": [conservative estimate per acre as number],
    "p50": [most likely estimate per acre as number],
    "p90": [optimistic estimate per acre as number],
    "totalValue": [total property value at P50 as number],
    "pricePerAcre": [P50 value as number],
    "confidence": [0.0 to 1.0 confidence score]
  },
  "analysis": {
    "narrative": "Plain English explanation of the valuation reasoning, market conditions and findings. No JSON, code formatting, or technical markup.",
    "keyFactors": ["list of factors affecting property value"],
    "confidence": [0.0 to 1.0 confidence score]
  },
  "comparableSales": [
    {
      "description": "Property description",
      "location": "Sale location",
      "date": "Sale date",
      "pricePerAcre": [price per acre as number],
      "totalPrice": [total sale price as number],
      "acreage": [property size as number],
      "features": ["property features"],
      "sourceUrl": "URL of the source"
    }
  ],
  "sources": [
    {
      "title": "Source title",
      "organization": "Publishing organization",
      "url": "Source URL"
    }
  ]
}

Search for authentic, current market data from sources like USDA, university extension services, farm real estate companies, auction results, and agricultural publications. Focus on recent transactions and current market conditions to provide the most accurate valuation possible.`,
		input.PropertyDescription,
		input.Location,
		input.Acreage,
		irrigated,
		tillable,
		cropType,
		input.Location,
		landClass,
		input.Acreage,
		input.Location,
		input.Acreage,
		cropType,
		input.Irrigated,
		input.Tillable,
	)
}

// normalizeValuation fills missing numeric fields from their siblings, cleans
// the narrative, and drops comparable sales that fail the positivity
// invariant after derivation
func (s *ValuationService) normalizeValuation(raw *rawValuationPayload, input *model.PropertyInput, freeText string) *model.ValuationResult {
	property := model.PropertySummary{
		Acreage:  raw.Property.Acreage,
		Location: raw.Property.Location,
		Features: raw.Property.Features,
	}
	if property.Acreage <= 0 {
		property.Acreage = input.Acreage
	}
	if property.Location == "" {
		property.Location = input.Location
	}
	if len(property.Features) == 0 {
		property.Features = input.Features()
	}

	figures := model.ValuationFigures{
		P10: raw.Valuation.P10,
		P50: raw.Valuation.P50,
		P90: raw.Valuation.P90,
	}
	if raw.Valuation.PricePerAcre != nil && *raw.Valuation.PricePerAcre > 0 {
		figures.PricePerAcre = *raw.Valuation.PricePerAcre
	} else {
		figures.PricePerAcre = figures.P50
	}
	if raw.Valuation.TotalValue != nil && *raw.Valuation.TotalValue > 0 {
		figures.TotalValue = *raw.Valuation.TotalValue
	} else {
		figures.TotalValue = math.Round(figures.P50 * property.Acreage)
	}
	if raw.Valuation.Confidence != nil {
		figures.Confidence = *raw.Valuation.Confidence
	} else {
		figures.Confidence = defaultConfidence
	}

	narrative := raw.Analysis.Narrative
	if narrative == "" {
		narrative = freeText
	}
	analysis := model.Analysis{
		Narrative:  utils.CleanNarrative(narrative),
		KeyFactors: raw.Analysis.KeyFactors,
	}
	if analysis.KeyFactors == nil {
		analysis.KeyFactors = []string{}
	}
	if raw.Analysis.Confidence != nil {
		analysis.Confidence = *raw.Analysis.Confidence
	} else {
		analysis.Confidence = defaultConfidence
	}

	comparableSales := normalizeComparableSales(raw.ComparableSales, input.Location)

	sources := raw.Sources
	if sources == nil {
		sources = []model.WebSource{}
	}

	return &model.ValuationResult{
		Property:        property,
		Valuation:       figures,
		Analysis:        analysis,
		ComparableSales: comparableSales,
		Sources:         sources,
	}
}

// normalizeComparableSales derives a missing member of {pricePerAcre,
// totalPrice, acreage} when the other two are present via the
// price x acreage = total identity, then drops entries that still fail the
// all-positive invariant. A bad entry never aborts the whole valuation.
func normalizeComparableSales(raw []rawComparableSale, defaultLocation string) []model.ComparableSale {
	sales := []model.ComparableSale{}

	for _, entry := range raw {
		ppa := positiveOrZero(entry.PricePerAcre)
		total := positiveOrZero(entry.TotalPrice)
		acreage := positiveOrZero(entry.Acreage)

		switch {
		case ppa == 0 && total > 0 && acreage > 0:
			ppa = math.Round(total / acreage)
		case total == 0 && ppa > 0 && acreage > 0:
			total = math.Round(ppa * acreage)
		case acreage == 0 && total > 0 && ppa > 0:
			acreage = math.Round(total / ppa)
		}

		if ppa <= 0 || total <= 0 || acreage <= 0 {
			continue
		}

		sale := model.ComparableSale{
			Description:  entry.Description,
			Location:     entry.Location,
			Date:         entry.Date,
			PricePerAcre: ppa,
			TotalPrice:   total,
			Acreage:      acreage,
			Features:     entry.Features,
			SourceURL:    entry.SourceURL,
		}
		if sale.Description == "" {
			sale.Description = "Comparable farmland sale"
		}
		if sale.Location == "" {
			sale.Location = defaultLocation
		}
		if sale.Date == "" {
			sale.Date = "Recent"
		}
		if sale.Features == nil {
			sale.Features = []string{}
		}
		sales = append(sales, sale)
	}

	return sales
}

func positiveOrZero(v *float64) float64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return *v
}

// fallbackValuation synthesizes a deterministic result when structured
// extraction failed entirely. The narrative reuses whatever free text the
// provider produced, or a templated sentence when there was none.
func (s *ValuationService) fallbackValuation(input *model.PropertyInput, freeText string) *model.ValuationResult {
	narrative := utils.CleanNarrative(freeText)
	if narrative == "" {
		landClass := "dryland"
		if input.Irrigated {
			landClass = "irrigated"
		}
		narrative = fmt.Sprintf(
			"Based on regional farmland market conditions, the %g-acre %s property in %s is estimated at a median of $%d per acre.",
			input.Acreage, landClass, input.Location, fallbackP50,
		)
	}

	return &model.ValuationResult{
		Property: model.PropertySummary{
			Acreage:  input.Acreage,
			Location: input.Location,
			Features: input.Features(),
		},
		Valuation: model.ValuationFigures{
			P10:          fallbackP10,
			P50:          fallbackP50,
			P90:          fallbackP90,
			TotalValue:   math.Round(fallbackP50 * input.Acreage),
			PricePerAcre: fallbackP50,
			Confidence:   fallbackConfidence,
		},
		Analysis: model.Analysis{
			Narrative: narrative,
			KeyFactors: []string{
				"Current market analysis",
				"Regional farmland trends",
				"Property characteristics",
			},
			Confidence: fallbackConfidence,
		},
		ComparableSales: []model.ComparableSale{},
		Sources:         []model.WebSource{},
	}
}

// flattenValuation maps a property input and its valuation result onto a
// persistable row. Acreage and confidence are stored as decimal text.
func flattenValuation(input *model.PropertyInput, result *model.ValuationResult) *model.Valuation {
	row := &model.Valuation{
		PropertyDescription: input.PropertyDescription,
		Location:            input.Location,
		Acreage:             strconv.FormatFloat(input.Acreage, 'f', -1, 64),
		Irrigated:           input.Irrigated,
		Tillable:            input.Tillable,
		P10:                 result.Valuation.P10,
		P50:                 result.Valuation.P50,
		P90:                 result.Valuation.P90,
		TotalValue:          result.Valuation.TotalValue,
		PricePerAcre:        result.Valuation.PricePerAcre,
		Confidence:          strconv.FormatFloat(result.Valuation.Confidence, 'f', -1, 64),
		Narrative:           result.Analysis.Narrative,
		KeyFactors:          model.StringList(result.Analysis.KeyFactors),
		ComparableSales:     model.ComparableSaleList(result.ComparableSales),
		Sources:             model.SourceList(result.Sources),
	}
	if input.CropType != "" {
		cropType := input.CropType
		row.CropType = &cropType
	}
	return row
}
