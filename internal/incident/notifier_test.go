package incident

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordedCall struct {
	Kind  string // "save" or "broadcast"
	Room  string
	Name  string
	Value any
}

type fakeRoomClient struct {
	calls        []recordedCall
	vars         map[string]any
	saveErr      error
	broadcastErr error
}

func newFakeRoomClient() *fakeRoomClient {
	return &fakeRoomClient{vars: make(map[string]any)}
}

func (f *fakeRoomClient) SaveVariable(_ context.Context, room, name string, value any) error {
	f.calls = append(f.calls, recordedCall{Kind: "save", Room: room, Name: name, Value: value})
	if f.saveErr != nil {
		return f.saveErr
	}
	f.vars[room+"/"+name] = value
	return nil
}

func (f *fakeRoomClient) BroadcastEvent(_ context.Context, room, name string, data any) error {
	f.calls = append(f.calls, recordedCall{Kind: "broadcast", Room: room, Name: name, Value: data})
	return f.broadcastErr
}

const testRoom = "https://play.workadventu.re/@/org/world/room"

func TestNotifierTrigger(t *testing.T) {
	client := newFakeRoomClient()
	var out bytes.Buffer
	n := NewNotifier(client, testRoom, WithOutput(&out))

	require.NoError(t, n.Trigger(context.Background(), "https://x/y"))

	require.Len(t, client.calls, 2)
	assert.Equal(t, recordedCall{Kind: "save", Room: testRoom, Name: VariableName, Value: true}, client.calls[0])
	assert.Equal(t, recordedCall{
		Kind:  "broadcast",
		Room:  testRoom,
		Name:  EventTriggered,
		Value: map[string]any{"incidentUrl": "https://x/y"},
	}, client.calls[1])
	assert.Contains(t, out.String(), "Variable 'incidentTriggered' set to true")
	assert.Contains(t, out.String(), "Event 'incident-triggered' broadcasted")
}

func TestNotifierTriggerRequiresURL(t *testing.T) {
	client := newFakeRoomClient()
	n := NewNotifier(client, testRoom)

	for _, url := range []string{"", "   "} {
		err := n.Trigger(context.Background(), url)
		assert.ErrorIs(t, err, ErrMissingURL)
	}
	assert.Empty(t, client.calls)
}

func TestNotifierResolve(t *testing.T) {
	client := newFakeRoomClient()
	n := NewNotifier(client, testRoom)

	require.NoError(t, n.Resolve(context.Background()))

	require.Len(t, client.calls, 2)
	assert.Equal(t, false, client.calls[0].Value)
	assert.Equal(t, EventResolved, client.calls[1].Name)
	assert.Equal(t, map[string]any{"message": ResolvedMessage}, client.calls[1].Value)
}

func TestNotifierAbortsOnFirstFailure(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "connection refused")

	testCases := []struct {
		name          string
		saveErr       error
		broadcastErr  error
		expectedCalls int
		expectedStep  string
	}{
		{
			name:          "save_fails",
			saveErr:       unavailable,
			expectedCalls: 1,
			expectedStep:  "save variable incidentTriggered",
		},
		{
			name:          "broadcast_fails",
			broadcastErr:  unavailable,
			expectedCalls: 2,
			expectedStep:  "broadcast incident-triggered",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeRoomClient()
			client.saveErr = tc.saveErr
			client.broadcastErr = tc.broadcastErr
			n := NewNotifier(client, testRoom)

			err := n.Trigger(context.Background(), "https://x/y")
			require.Error(t, err)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tc.expectedStep, stepErr.Step)
			assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
			assert.True(t, IsConnectionProblem(err))
			assert.Len(t, client.calls, tc.expectedCalls)
		})
	}
}

func TestIsConnectionProblem(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), true},
		{"permission_denied", status.Error(codes.PermissionDenied, "no room api access"), true},
		{"wrapped_unavailable", fmt.Errorf("save: %w", status.Error(codes.Unavailable, "down")), true},
		{"no_connection_message", errors.New("No connection established"), true},
		{"invalid_argument", status.Error(codes.InvalidArgument, "bad room"), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsConnectionProblem(tc.err))
		})
	}
}

func TestNotifierLastWriteWins(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 20; run++ {
		client := newFakeRoomClient()
		n := NewNotifier(client, testRoom)

		var last bool
		ops := 1 + rng.Intn(10)
		for i := 0; i < ops; i++ {
			if rng.Intn(2) == 0 {
				require.NoError(t, n.Trigger(context.Background(), fmt.Sprintf("https://x/%d", i)))
				last = true
			} else {
				require.NoError(t, n.Resolve(context.Background()))
				last = false
			}
		}
		assert.Equal(t, last, client.vars[testRoom+"/"+VariableName], "run %d", run)
	}
}

func TestStatusFromValue(t *testing.T) {
	assert.Equal(t, StatusAlerted, StatusFromValue(true))
	assert.Equal(t, StatusClear, StatusFromValue(false))
	assert.Equal(t, StatusClear, StatusFromValue(nil))
	assert.Equal(t, StatusClear, StatusFromValue("true"))
}

func TestDecodePayloads(t *testing.T) {
	assert.Equal(t, "https://x/y", DecodeTriggered(map[string]any{"incidentUrl": "https://x/y"}).IncidentURL)
	assert.Equal(t, NoURLPlaceholder, DecodeTriggered(nil).IncidentURL)
	assert.Equal(t, NoURLPlaceholder, DecodeTriggered(map[string]any{"incidentUrl": 12}).IncidentURL)
	assert.Equal(t, "all good", DecodeResolved(map[string]any{"message": "all good"}).Message)
	assert.Equal(t, ResolvedMessage, DecodeResolved(map[string]any{}).Message)
	assert.Equal(t, "https://a", DecodeTriggered(TriggeredPayload{IncidentURL: "https://a"}).IncidentURL)
}
