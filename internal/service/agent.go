package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"landiq/internal/model"
)

const agentSystemPrompt = "You are a helpful land valuation assistant."

// AgentService runs the chat-style valuation assistant. Each session keeps a
// role-tagged transcript; the provider may invoke the valuation tools
// mid-conversation and the results are fed back as tool messages.
type AgentService struct {
	ai         *OpenAIClient
	sessions   SessionStore
	valuations *ValuationService
}

// NewAgentService creates a new agent service
func NewAgentService(ai *OpenAIClient, sessions SessionStore, valuations *ValuationService) *AgentService {
	return &AgentService{
		ai:         ai,
		sessions:   sessions,
		valuations: valuations,
	}
}

// AdjustValuation scales all five numeric valuation fields by factor,
// rounding to the nearest integer. Confidence is left unchanged.
func AdjustValuation(figures model.ValuationFigures, factor float64) model.ValuationFigures {
	return model.ValuationFigures{
		P10:          math.Round(figures.P10 * factor),
		P50:          math.Round(figures.P50 * factor),
		P90:          math.Round(figures.P90 * factor),
		TotalValue:   math.Round(figures.TotalValue * factor),
		PricePerAcre: math.Round(figures.PricePerAcre * factor),
		Confidence:   figures.Confidence,
	}
}

func agentTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "generate_land_valuation",
				Description: "Generate a land valuation for the given property",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"propertyDescription": map[string]any{"type": "string"},
						"acreage":             map[string]any{"type": "number"},
						"location":            map[string]any{"type": "string"},
						"irrigated":           map[string]any{"type": "boolean"},
						"tillable":            map[string]any{"type": "boolean"},
						"cropType":            map[string]any{"type": "string"},
					},
					"required": []string{"propertyDescription", "acreage", "location", "irrigated", "tillable"},
				},
			},
		},
		{
			Type: "function",
			Function: &ToolFunction{
				Name:        "adjust_valuation",
				Description: "Adjust an existing valuation by a factor",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"valuation": map[string]any{"type": "object"},
						"factor":    map[string]any{"type": "number"},
					},
					"required": []string{"valuation", "factor"},
				},
			},
		},
	}
}

// HandleMessage appends the incoming message to the session transcript,
// lets the provider answer (possibly via tool calls executed synchronously),
// and returns the session id with the final assistant text
func (s *AgentService) HandleMessage(ctx context.Context, req *model.AgentMessageRequest) (*model.AgentMessageResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, ok := s.sessions.Get(sessionID)
	if !ok {
		session = &AgentSession{
			ID: sessionID,
			Messages: []ChatMessage{
				{Role: "system", Content: agentSystemPrompt},
			},
		}
	}

	session.Messages = append(session.Messages, ChatMessage{Role: "user", Content: req.Message})

	resp, err := s.ai.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: session.Messages,
		Tools:    agentTools(),
	})
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &model.GenerationError{Err: fmt.Errorf("no response from provider")}
	}

	assistant := resp.Choices[0].Message
	session.Messages = append(session.Messages, assistant)

	if len(assistant.ToolCalls) == 0 {
		s.sessions.Put(session)
		return &model.AgentMessageResponse{SessionID: sessionID, Message: assistant.Content}, nil
	}

	for _, call := range assistant.ToolCalls {
		result := s.executeTool(ctx, call)
		session.Messages = append(session.Messages, ChatMessage{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	// One more round trip for the final natural-language reply
	followUp, err := s.ai.ChatCompletion(ctx, ChatCompletionRequest{
		Messages: session.Messages,
	})
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}
	if len(followUp.Choices) == 0 {
		return nil, &model.GenerationError{Err: fmt.Errorf("no follow-up response from provider")}
	}

	final := followUp.Choices[0].Message
	session.Messages = append(session.Messages, final)
	s.sessions.Put(session)

	return &model.AgentMessageResponse{SessionID: sessionID, Message: final.Content}, nil
}

// executeTool runs one requested tool call and returns its JSON result. Tool
// failures are reported back to the model as an error payload rather than
// aborting the conversation turn.
func (s *AgentService) executeTool(ctx context.Context, call ToolCall) string {
	switch call.Function.Name {
	case "generate_land_valuation":
		var input model.PropertyInput
		if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err))
		}
		result, err := s.valuations.GenerateValuation(ctx, &input)
		if err != nil {
			return toolError(err)
		}
		return marshalToolResult(result)

	case "adjust_valuation":
		var args struct {
			Valuation model.ValuationFigures `json:"valuation"`
			Factor    float64                `json:"factor"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err))
		}
		return marshalToolResult(AdjustValuation(args.Valuation, args.Factor))

	default:
		return toolError(fmt.Errorf("unknown tool: %s", call.Function.Name))
	}
}

func marshalToolResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Warning: Failed to marshal tool result: %v", err)
		return toolError(err)
	}
	return string(data)
}

func toolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
