package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/bazaar-hub/bazaar/internal/domain/negotiation"
)

// Inbound events.
const (
	EventCreateConversation = "createConversation"
	EventJoinConversation   = "joinConversation"
	EventLeaveConversation  = "leaveConversation"
	EventSendMessage        = "sendMessage"
	EventProposePrice       = "proposePrice"
	EventDecideProposal     = "decideProposal"
	EventGetConversations   = "getConversations"
)

// Outbound events.
const (
	EventConversationCreated  = "conversationCreated"
	EventConversationMessages = "conversationMessages"
	EventNewMessage           = "newMessage"
	EventNewProposal          = "newProposal"
	EventProposalUpdated      = "proposalUpdated"
	EventConversationUpdated  = "conversationUpdated"
	EventUserConversations    = "userConversations"
	EventAck                  = "ack"
	EventError                = "error"
)

// Error codes carried by error frames.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTemporary        = "TEMPORARY"
	CodeBadFrame         = "BAD_FRAME"
	CodeUnsupportedEvent = "UNSUPPORTED_EVENT"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string      `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// AckData confirms a request to its originator.
type AckData struct {
	Event  string      `json:"event"`
	Result interface{} `json:"result,omitempty"`
}

type createConversationRequest struct {
	ProductID uuid.UUID `json:"productId"`
	SellerID  uuid.UUID `json:"sellerId"`
}

func (r *createConversationRequest) validate() error {
	if r.ProductID == uuid.Nil {
		return negotiation.Invalidf("productId is required")
	}
	if r.SellerID == uuid.Nil {
		return negotiation.Invalidf("sellerId is required")
	}
	return nil
}

// conversationRef is the payload of joinConversation and leaveConversation.
type conversationRef struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

func (r *conversationRef) validate() error {
	if r.ConversationID == uuid.Nil {
		return negotiation.Invalidf("conversationId is required")
	}
	return nil
}

type sendMessageRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Message        *struct {
		Text string `json:"text"`
	} `json:"message"`
}

func (r *sendMessageRequest) validate() error {
	if r.ConversationID == uuid.Nil {
		return negotiation.Invalidf("conversationId is required")
	}
	if r.Message == nil {
		return negotiation.Invalidf("message is required")
	}
	return nil
}

type proposePriceRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Proposal       *struct {
		Price *float64 `json:"price"`
	} `json:"proposal"`
}

func (r *proposePriceRequest) validate() error {
	if r.ConversationID == uuid.Nil {
		return negotiation.Invalidf("conversationId is required")
	}
	if r.Proposal == nil || r.Proposal.Price == nil {
		return negotiation.Invalidf("proposal.price is required")
	}
	_, err := negotiation.NormalizePrice(*r.Proposal.Price)
	return err
}

type decideProposalRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	Decision       *struct {
		Accepted *bool `json:"accepted"`
	} `json:"decision"`
}

func (r *decideProposalRequest) validate() error {
	if r.ConversationID == uuid.Nil {
		return negotiation.Invalidf("conversationId is required")
	}
	if r.MessageID == uuid.Nil {
		return negotiation.Invalidf("messageId is required")
	}
	if r.Decision == nil || r.Decision.Accepted == nil {
		return negotiation.Invalidf("decision.accepted is required")
	}
	return nil
}

type getConversationsRequest struct{}

func (r *getConversationsRequest) validate() error {
	return nil
}

type request interface {
	validate() error
}

// decodeRequest strictly decodes a frame payload into req and validates it.
// A missing payload decodes as an empty object.
func decodeRequest(data json.RawMessage, req request) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return negotiation.Invalidf("invalid payload: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return negotiation.Invalidf("invalid payload: trailing data")
	}
	return req.validate()
}

// errorCode maps an error class to its wire code. Unclassified errors are reported as
// temporary.
func errorCode(err error) string {
	switch {
	case errors.Is(err, negotiation.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, negotiation.ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, negotiation.ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeTemporary
	}
}

func errorMessage(err error) string {
	if errors.Is(err, negotiation.ErrTransient) {
		return "temporary failure, retry later"
	}
	return err.Error()
}

func encodeFrame(event, id string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(outFrame{Event: event, ID: id, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return payload, nil
}
