package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pulse/internal/domain"
	"pulse/internal/models"
	"pulse/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCallStore struct{}

func (failingCallStore) CreateCall(context.Context, *models.Call) error { return errors.New("db down") }
func (failingCallStore) AnswerCall(context.Context, string, string, time.Time) error {
	return errors.New("db down")
}
func (failingCallStore) RejectCall(context.Context, string, string) error { return errors.New("db down") }
func (failingCallStore) EndCall(context.Context, string, string, time.Time) (*models.Call, error) {
	return nil, errors.New("db down")
}

func newCallFixture(t *testing.T, online ...string) (*CallService, *fakeDirectory, *repository.CallRepository) {
	t.Helper()
	repo := repository.NewCallRepository(newTestDB(t))
	dir := newFakeDirectory(online...)
	return NewCallService(dir, repo, nil), dir, repo
}

func TestInitiateOfflineCallee(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a")
	origin := dir.peer("a")

	id, err := svc.Initiate(ctx, origin, "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)
	assert.Empty(t, id)

	var got unavailablePayload
	origin.Last(t, domain.EventCallUnavailable, &got)
	assert.Equal(t, unavailablePayload{To: "b", Reason: "User is offline"}, got)

	calls, err := repo.ListByUser(ctx, "a", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestInitiateValidation(t *testing.T) {
	svc, dir, _ := newCallFixture(t, "a", "b")
	origin := dir.peer("a")

	tests := []struct {
		name     string
		callerID string
		req      InitiateRequest
		want     error
	}{
		{"not setup", "", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice}, domain.ErrNotSetup},
		{"no callee", "a", InitiateRequest{CallType: domain.CallTypeVoice}, domain.ErrInvalidArgument},
		{"bad type", "a", InitiateRequest{CalleeID: "b", CallType: "hologram"}, domain.ErrInvalidCallType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Initiate(ctx, origin, tt.callerID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, dir.peer("b").Events())
}

func TestVideoCallAnsweredThenEnded(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	svc.now = func() time.Time { return clock }

	offer := json.RawMessage(`{"sdp":"offer"}`)
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{
		CalleeID:   "b",
		CallType:   domain.CallTypeVideo,
		Signal:     offer,
		CallerInfo: json.RawMessage(`{"name":"Ann"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, callID)

	var incoming incomingCallPayload
	dir.peer("b").Last(t, domain.EventIncomingCall, &incoming)
	assert.Equal(t, "a", incoming.From)
	assert.Equal(t, domain.CallTypeVideo, incoming.CallType)
	assert.Equal(t, callID, incoming.CallID)
	assert.JSONEq(t, string(offer), string(incoming.Signal))

	answer := json.RawMessage(`{"sdp":"answer"}`)
	require.NoError(t, svc.Accept(ctx, "b", "", callID, answer))
	var accepted callAcceptedPayload
	dir.peer("a").Last(t, domain.EventCallAccepted, &accepted)
	assert.JSONEq(t, string(answer), string(accepted.Signal))

	clock = start.Add(42 * time.Second)
	require.NoError(t, svc.End(ctx, "a", "b", callID))
	var ended callRefPayload
	dir.peer("b").Last(t, domain.EventCallEnded, &ended)
	assert.Equal(t, callRefPayload{From: "a", CallID: callID}, ended)

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, rec.Status)
	assert.Equal(t, 42, rec.Duration)
	_, _, live := svc.InFlight(callID)
	assert.False(t, live)
}

func TestAcceptThenImmediateEnd(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)

	require.NoError(t, svc.Accept(ctx, "b", "a", callID, nil))
	require.NoError(t, svc.End(ctx, "b", "", callID))

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, rec.Status)
	assert.GreaterOrEqual(t, rec.Duration, 0)
	assert.Len(t, dir.peer("a").Events(), 2)
}

func TestRejectLeavesNoTimestamps(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, "b", "", callID))
	var rejected callRefPayload
	dir.peer("a").Last(t, domain.EventCallRejected, &rejected)
	assert.Equal(t, callRefPayload{From: "b", CallID: callID}, rejected)

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRejected, rec.Status)
	assert.Nil(t, rec.StartedAt)
	assert.Nil(t, rec.EndedAt)
}

func TestCallerDisconnectLeavesMissed(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)

	svc.Forget("a")
	_, _, live := svc.InFlight(callID)
	assert.False(t, live)

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusMissed, rec.Status)
}

func TestCallerCannotAnswerOwnCall(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)

	require.NoError(t, svc.Accept(ctx, "a", "b", callID, nil))
	assert.NotEmpty(t, dir.peer("b").Events())

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusMissed, rec.Status)
}

func TestSignalsSurvivePersistenceFailure(t *testing.T) {
	dir := newFakeDirectory("a", "b")
	svc := NewCallService(dir, failingCallStore{}, nil)

	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVideo})
	require.NoError(t, err)
	assert.Empty(t, callID)

	var incoming incomingCallPayload
	dir.peer("b").Last(t, domain.EventIncomingCall, &incoming)
	assert.Empty(t, incoming.CallID)

	require.NoError(t, svc.Accept(ctx, "b", "a", "c1", nil))
	require.NoError(t, svc.End(ctx, "a", "b", "c1"))
	dir.peer("a").Last(t, domain.EventCallAccepted, &callAcceptedPayload{})
	dir.peer("b").Last(t, domain.EventCallEnded, &callRefPayload{})
}

func TestRelayCandidate(t *testing.T) {
	svc, dir, _ := newCallFixture(t, "a", "b")

	require.NoError(t, svc.RelayCandidate("a", "b", json.RawMessage(`{"candidate":"c"}`)))
	var got candidatePayload
	dir.peer("b").Last(t, domain.EventIceCandidate, &got)
	assert.Equal(t, "a", got.From)

	assert.NoError(t, svc.RelayCandidate("a", "ghost", nil))
	assert.ErrorIs(t, svc.RelayCandidate("", "b", nil), domain.ErrNotSetup)
}

func TestHangUpBeforeAnswerLeavesMissed(t *testing.T) {
	svc, dir, repo := newCallFixture(t, "a", "b")
	callID, err := svc.Initiate(ctx, dir.peer("a"), "a", InitiateRequest{CalleeID: "b", CallType: domain.CallTypeVoice})
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, "a", "b", callID))
	var ended callRefPayload
	dir.peer("b").Last(t, domain.EventCallEnded, &ended)
	assert.Equal(t, callRefPayload{From: "a", CallID: callID}, ended)

	rec, err := repo.GetByID(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusMissed, rec.Status)
	assert.Nil(t, rec.EndedAt)
	assert.Zero(t, rec.Duration)
	_, _, live := svc.InFlight(callID)
	assert.False(t, live)
}
