package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pulse/internal/domain"
	"pulse/internal/service"

	"go.uber.org/zap"
)

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) error

var errUnknownEvent = errors.New("unsupported event type")

// Dispatcher routes inbound frames through a table keyed by event type.
type Dispatcher struct {
	hub   *Hub
	calls *service.CallService
	log   *zap.Logger
	table map[string]handlerFunc
}

func NewDispatcher(hub *Hub, calls *service.CallService, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{hub: hub, calls: calls, log: log}
	d.table = map[string]handlerFunc{
		domain.EventSetup:           d.setup,
		domain.EventJoinChat:        d.joinChat,
		domain.EventLeaveChat:       d.leaveChat,
		domain.EventTyping:          d.typing(domain.EventTyping),
		domain.EventStopTyping:      d.typing(domain.EventStopTyping),
		domain.EventNewMessage:      d.newMessage,
		domain.EventReadReceipt:     d.readReceipt,
		domain.EventMessageReaction: d.reaction,
		domain.EventCallUser:        d.callUser,
		domain.EventCallAccepted:    d.callAccepted,
		domain.EventCallRejected:    d.callRejected,
		domain.EventCallEnded:       d.callEnded,
		domain.EventIceCandidate:    d.iceCandidate,
		domain.EventStatusUpdate:    d.statusUpdate,
	}
	return d
}

// Dispatch runs the handler for f. Failures go back to c as an error frame.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, f Frame) {
	h, ok := d.table[f.Type]
	if !ok {
		d.replyError(c, f.Type, errUnknownEvent)
		return
	}
	if err := h(ctx, c, f.Data); err != nil {
		d.replyError(c, f.Type, err)
	}
}

// Disconnect releases everything held for c.
func (d *Dispatcher) Disconnect(c *Client) {
	userID, removed := d.hub.Drop(c)
	if removed && d.calls != nil {
		d.calls.Forget(userID)
	}
}

func (d *Dispatcher) replyError(c *Client, event string, err error) {
	code := errorCode(err)
	d.log.Debug("event rejected", zap.String("conn", c.ID), zap.String("event", event), zap.String("code", code), zap.Error(err))
	_ = c.Emit(domain.EventError, errorPayload{Code: code, Error: fmt.Sprintf("%s: %v", event, err)})
}

func errorCode(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNotSetup):
		return "not_setup"
	case errors.Is(err, domain.ErrAlreadySetup):
		return "already_setup"
	case errors.Is(err, domain.ErrUserMismatch):
		return "user_mismatch"
	case errors.Is(err, domain.ErrInvalidCallType):
		return "invalid_call_type"
	case errors.Is(err, domain.ErrInvalidArgument), errors.As(err, &syntax), errors.As(err, &typeErr):
		return "bad_request"
	}
	return "internal"
}

func decode(data json.RawMessage, into interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data: %w", domain.ErrInvalidArgument)
	}
	return json.Unmarshal(data, into)
}

func decodeID(data json.RawMessage, what string) (string, error) {
	var id string
	if err := decode(data, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("empty %s: %w", what, domain.ErrInvalidArgument)
	}
	return id, nil
}

func (d *Dispatcher) setup(_ context.Context, c *Client, data json.RawMessage) error {
	userID, err := decodeID(data, "user id")
	if err != nil {
		return err
	}
	_, err = d.hub.Setup(c, userID)
	return err
}

func (d *Dispatcher) joinChat(_ context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeID(data, "chat id")
	if err != nil {
		return err
	}
	d.hub.Relay().Join(c, chatID)
	return nil
}

func (d *Dispatcher) leaveChat(_ context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeID(data, "chat id")
	if err != nil {
		return err
	}
	d.hub.Relay().Leave(c, chatID)
	return nil
}

// typing relays typing indicators under the event name they arrived with.
func (d *Dispatcher) typing(event string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) error {
		var p typingPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if p.ChatID == "" {
			return fmt.Errorf("empty chat id: %w", domain.ErrInvalidArgument)
		}
		if p.UserID == "" {
			p.UserID = c.UserID()
		}
		d.hub.Relay().Publish(p.ChatID, event, p, c)
		return nil
	}
}

// newMessage relays the client's message verbatim as message-received to the
// room and to listed participants who are online but outside it.
func (d *Dispatcher) newMessage(_ context.Context, c *Client, data json.RawMessage) error {
	var env messageEnvelope
	if err := decode(data, &env); err != nil {
		return err
	}
	chatID := env.chatID()
	if chatID == "" {
		return fmt.Errorf("message without chat: %w", domain.ErrInvalidArgument)
	}
	participants := env.participantIDs()
	if env.Sender.ID != "" {
		filtered := participants[:0]
		for _, id := range participants {
			if id != env.Sender.ID {
				filtered = append(filtered, id)
			}
		}
		participants = filtered
	}
	d.hub.publishToChat(chatID, participants, domain.EventMessageReceived, data, c)
	return nil
}

func (d *Dispatcher) readReceipt(_ context.Context, c *Client, data json.RawMessage) error {
	var p readReceiptPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ChatID == "" {
		return fmt.Errorf("empty chat id: %w", domain.ErrInvalidArgument)
	}
	readBy := p.UserID
	if readBy == "" {
		readBy = c.UserID()
	}
	d.hub.Relay().Publish(p.ChatID, domain.EventMessagesRead, messagesReadPayload{ChatID: p.ChatID, ReadBy: readBy}, c)
	return nil
}

func (d *Dispatcher) reaction(_ context.Context, c *Client, data json.RawMessage) error {
	var p reactionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ChatID == "" {
		return fmt.Errorf("empty chat id: %w", domain.ErrInvalidArgument)
	}
	d.hub.Relay().Publish(p.ChatID, domain.EventMessageReaction, data, c)
	return nil
}

func (d *Dispatcher) callUser(ctx context.Context, c *Client, data json.RawMessage) error {
	var p callUserPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	_, err := d.calls.Initiate(ctx, c, c.UserID(), service.InitiateRequest{
		CalleeID:   p.To,
		CallType:   p.CallType,
		Signal:     p.Signal,
		CallerInfo: p.CallerInfo,
	})
	return err
}

func (d *Dispatcher) callAccepted(ctx context.Context, c *Client, data json.RawMessage) error {
	var p callAcceptedPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.calls.Accept(ctx, c.UserID(), p.To, p.CallID, p.Signal)
}

func (d *Dispatcher) callRejected(ctx context.Context, c *Client, data json.RawMessage) error {
	var p callRefPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.calls.Reject(ctx, c.UserID(), p.To, p.CallID)
}

func (d *Dispatcher) callEnded(ctx context.Context, c *Client, data json.RawMessage) error {
	var p callRefPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.calls.End(ctx, c.UserID(), p.To, p.CallID)
}

func (d *Dispatcher) iceCandidate(_ context.Context, c *Client, data json.RawMessage) error {
	var p iceCandidatePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	return d.calls.RelayCandidate(c.UserID(), p.To, p.Candidate)
}

func (d *Dispatcher) statusUpdate(_ context.Context, c *Client, data json.RawMessage) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data: %w", domain.ErrInvalidArgument)
	}
	d.hub.Broadcast(domain.EventNewStatus, data, c)
	return nil
}
