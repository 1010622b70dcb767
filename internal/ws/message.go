package ws

import "contractlens/pkg/domain"

// Client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeNewComment  = "newComment"
)

// Server message types.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeCommentAdded = "commentAdded"
	TypeCommentError = "commentError"
)

// ClientMessage is one frame from the browser. The author is never part of
// the payload; identity comes from the session bound at handshake.
type ClientMessage struct {
	Type       string            `json:"type"`
	ContractID string            `json:"contractId"`
	Body       string            `json:"body,omitempty"`
	Highlight  *domain.TextRange `json:"highlight,omitempty"`
}

// ServerMessage is one frame to the browser.
type ServerMessage struct {
	Type       string          `json:"type"`
	ContractID string          `json:"contractId,omitempty"`
	Comment    *domain.Comment `json:"comment,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
}
