package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pulse/internal/domain"
	"pulse/internal/models"

	"go.uber.org/zap"
)

// Peer is a connection that can receive realtime events.
type Peer interface {
	Emit(event string, payload interface{}) error
}

// Directory resolves a user to the connection currently reachable for them.
type Directory interface {
	Lookup(userID string) (Peer, bool)
}

// CallStore persists the call log.
type CallStore interface {
	CreateCall(ctx context.Context, c *models.Call) error
	AnswerCall(ctx context.Context, callID, receiverID string, at time.Time) error
	RejectCall(ctx context.Context, callID, receiverID string) error
	EndCall(ctx context.Context, callID, partyID string, at time.Time) (*models.Call, error)
}

type callParties struct {
	callerID string
	calleeID string
}

func (p callParties) other(userID string) string {
	if userID == p.callerID {
		return p.calleeID
	}
	return p.callerID
}

// CallService relays call signaling between two users and keeps the call log.
// Signals are delivered first; log mutations are attempted independently and
// their failures are only logged.
type CallService struct {
	dir   Directory
	store CallStore
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	inFlight map[string]callParties
}

func NewCallService(dir Directory, store CallStore, log *zap.Logger) *CallService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallService{
		dir:      dir,
		store:    store,
		log:      log,
		now:      time.Now,
		inFlight: make(map[string]callParties),
	}
}

type InitiateRequest struct {
	CalleeID   string
	CallType   string
	Signal     json.RawMessage
	CallerInfo json.RawMessage
}

type incomingCallPayload struct {
	Signal     json.RawMessage `json:"signal"`
	From       string          `json:"from"`
	CallType   string          `json:"callType"`
	CallerInfo json.RawMessage `json:"callerInfo,omitempty"`
	CallID     string          `json:"callId,omitempty"`
}

type unavailablePayload struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type callAcceptedPayload struct {
	Signal json.RawMessage `json:"signal"`
}

type callRefPayload struct {
	From   string `json:"from"`
	CallID string `json:"callId,omitempty"`
}

type candidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

// Initiate offers a call from callerID. An offline callee produces
// call-unavailable on origin and no record. Otherwise a missed record is
// created and the callee gets incoming-call; the returned id is empty when
// the record could not be written.
func (s *CallService) Initiate(ctx context.Context, origin Peer, callerID string, req InitiateRequest) (string, error) {
	if callerID == "" {
		return "", domain.ErrNotSetup
	}
	if req.CalleeID == "" {
		return "", fmt.Errorf("call-user without callee: %w", domain.ErrInvalidArgument)
	}
	if !domain.IsCallType(req.CallType) {
		return "", domain.ErrInvalidCallType
	}
	callee, ok := s.dir.Lookup(req.CalleeID)
	if !ok {
		s.log.Info("callee unavailable", zap.String("caller", callerID), zap.String("callee", req.CalleeID))
		if origin != nil {
			_ = origin.Emit(domain.EventCallUnavailable, unavailablePayload{To: req.CalleeID, Reason: "User is offline"})
		}
		return "", nil
	}

	rec := &models.Call{CallerID: callerID, ReceiverID: req.CalleeID, Type: req.CallType}
	callID := ""
	if err := s.store.CreateCall(ctx, rec); err != nil {
		s.log.Warn("create call record", zap.String("caller", callerID), zap.String("callee", req.CalleeID), zap.Error(err))
	} else {
		callID = rec.ID
		s.mu.Lock()
		s.inFlight[callID] = callParties{callerID: callerID, calleeID: req.CalleeID}
		s.mu.Unlock()
	}

	err := callee.Emit(domain.EventIncomingCall, incomingCallPayload{
		Signal:     req.Signal,
		From:       callerID,
		CallType:   req.CallType,
		CallerInfo: req.CallerInfo,
		CallID:     callID,
	})
	if err != nil {
		s.log.Debug("incoming-call dropped", zap.String("callee", req.CalleeID), zap.Error(err))
	}
	return callID, nil
}

// Accept delivers the answer to the caller and marks the record answered.
// callerID may be empty when callID is known in flight.
func (s *CallService) Accept(ctx context.Context, calleeID, callerID, callID string, signal json.RawMessage) error {
	if calleeID == "" {
		return domain.ErrNotSetup
	}
	if callerID == "" {
		callerID = s.peerOf(callID, calleeID)
	}
	if callerID == "" {
		return fmt.Errorf("call-accepted without caller: %w", domain.ErrInvalidArgument)
	}
	s.deliver(callerID, domain.EventCallAccepted, callAcceptedPayload{Signal: signal})
	if callID == "" {
		return nil
	}
	if err := s.store.AnswerCall(ctx, callID, calleeID, s.now()); err != nil {
		s.log.Warn("answer call record", zap.String("call", callID), zap.String("callee", calleeID), zap.Error(err))
	}
	return nil
}

// Reject tells the caller the callee declined and marks the record rejected.
func (s *CallService) Reject(ctx context.Context, calleeID, callerID, callID string) error {
	if calleeID == "" {
		return domain.ErrNotSetup
	}
	if callerID == "" {
		callerID = s.peerOf(callID, calleeID)
	}
	if callerID == "" {
		return fmt.Errorf("call-rejected without caller: %w", domain.ErrInvalidArgument)
	}
	s.deliver(callerID, domain.EventCallRejected, callRefPayload{From: calleeID, CallID: callID})
	if callID == "" {
		return nil
	}
	s.release(callID)
	if err := s.store.RejectCall(ctx, callID, calleeID); err != nil {
		s.log.Warn("reject call record", zap.String("call", callID), zap.String("callee", calleeID), zap.Error(err))
	}
	return nil
}

// End tells the other party the call is over and closes the record with its duration.
func (s *CallService) End(ctx context.Context, fromID, toID, callID string) error {
	if fromID == "" {
		return domain.ErrNotSetup
	}
	if toID == "" {
		toID = s.peerOf(callID, fromID)
	}
	if toID == "" {
		return fmt.Errorf("call-ended without peer: %w", domain.ErrInvalidArgument)
	}
	s.deliver(toID, domain.EventCallEnded, callRefPayload{From: fromID, CallID: callID})
	if callID == "" {
		return nil
	}
	s.release(callID)
	rec, err := s.store.EndCall(ctx, callID, fromID, s.now())
	if err != nil {
		s.log.Warn("end call record", zap.String("call", callID), zap.String("from", fromID), zap.Error(err))
		return nil
	}
	s.log.Info("call ended", zap.String("call", callID), zap.Int("duration", rec.Duration))
	return nil
}

// RelayCandidate passes an ICE candidate through. Unreachable targets are ignored.
func (s *CallService) RelayCandidate(fromID, toID string, candidate json.RawMessage) error {
	if fromID == "" {
		return domain.ErrNotSetup
	}
	if toID == "" {
		return fmt.Errorf("ice-candidate without target: %w", domain.ErrInvalidArgument)
	}
	s.deliver(toID, domain.EventIceCandidate, candidatePayload{Candidate: candidate, From: fromID})
	return nil
}

// Forget drops every in-flight association involving userID. Records stay as they are.
func (s *CallService) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.inFlight {
		if p.callerID == userID || p.calleeID == userID {
			delete(s.inFlight, id)
		}
	}
}

// InFlight returns the parties of a live call attempt.
func (s *CallService) InFlight(callID string) (callerID, calleeID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inFlight[callID]
	return p.callerID, p.calleeID, ok
}

func (s *CallService) peerOf(callID, userID string) string {
	if callID == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inFlight[callID]
	if !ok || (p.callerID != userID && p.calleeID != userID) {
		return ""
	}
	return p.other(userID)
}

func (s *CallService) release(callID string) {
	s.mu.Lock()
	delete(s.inFlight, callID)
	s.mu.Unlock()
}

func (s *CallService) deliver(userID, event string, payload interface{}) {
	peer, ok := s.dir.Lookup(userID)
	if !ok {
		s.log.Debug("signal target unreachable", zap.String("to", userID), zap.String("event", event))
		return
	}
	if err := peer.Emit(event, payload); err != nil {
		s.log.Debug("signal dropped", zap.String("to", userID), zap.String("event", event), zap.Error(err))
	}
}
