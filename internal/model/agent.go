package model

// AgentMessageRequest is a single turn sent to the conversational agent.
// SessionID is empty on the first turn; the server generates one.
type AgentMessageRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message" binding:"required"`
}

// AgentMessageResponse carries the session id and the assistant's reply
type AgentMessageResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
