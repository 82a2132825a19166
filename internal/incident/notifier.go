package incident

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrMissingURL is returned by Trigger when no incident URL is given.
var ErrMissingURL = errors.New("incident URL is required")

// RoomClient is the subset of the room automation API the notifier needs.
type RoomClient interface {
	SaveVariable(ctx context.Context, room, name string, value any) error
	BroadcastEvent(ctx context.Context, room, name string, data any) error
}

// StepError records which remote step of a trigger/resolve sequence failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsConnectionProblem reports whether err looks like an unreachable API or a
// rejected key rather than a request-level failure.
func IsConnectionProblem(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}
	return strings.Contains(err.Error(), "No connection established")
}

// Notifier sets the shared incident flag and broadcasts the matching event.
// The two steps are not transactional: the flag is the durable state and the
// broadcast only nudges connected sessions.
type Notifier struct {
	client RoomClient
	room   string
	logger *zap.Logger
	out    io.Writer
}

type Option func(*Notifier)

// WithOutput sets where human readable progress lines go.
func WithOutput(w io.Writer) Option {
	return func(n *Notifier) { n.out = w }
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func NewNotifier(client RoomClient, room string, opts ...Option) *Notifier {
	n := &Notifier{
		client: client,
		room:   room,
		logger: zap.NewNop(),
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Trigger sets the flag to true and broadcasts incident-triggered.
func (n *Notifier) Trigger(ctx context.Context, incidentURL string) error {
	if strings.TrimSpace(incidentURL) == "" {
		return ErrMissingURL
	}
	n.logger.Info("triggering incident", zap.String("room", n.room), zap.String("incident_url", incidentURL))

	if err := n.client.SaveVariable(ctx, n.room, VariableName, true); err != nil {
		return &StepError{Step: "save variable " + VariableName, Err: err}
	}
	fmt.Fprintf(n.out, "✅ Variable '%s' set to true\n", VariableName)

	payload := TriggeredPayload{IncidentURL: incidentURL}
	if err := n.client.BroadcastEvent(ctx, n.room, EventTriggered, payload.Data()); err != nil {
		return &StepError{Step: "broadcast " + EventTriggered, Err: err}
	}
	fmt.Fprintf(n.out, "✅ Event '%s' broadcasted\n", EventTriggered)

	n.logger.Info("incident triggered", zap.String("room", n.room))
	return nil
}

// Resolve sets the flag to false and broadcasts incident-resolved.
func (n *Notifier) Resolve(ctx context.Context) error {
	n.logger.Info("resolving incident", zap.String("room", n.room))

	if err := n.client.SaveVariable(ctx, n.room, VariableName, false); err != nil {
		return &StepError{Step: "save variable " + VariableName, Err: err}
	}
	fmt.Fprintf(n.out, "✅ Variable '%s' set to false\n", VariableName)

	payload := ResolvedPayload{Message: ResolvedMessage}
	if err := n.client.BroadcastEvent(ctx, n.room, EventResolved, payload.Data()); err != nil {
		return &StepError{Step: "broadcast " + EventResolved, Err: err}
	}
	fmt.Fprintf(n.out, "✅ Event '%s' broadcasted\n", EventResolved)

	n.logger.Info("incident resolved", zap.String("room", n.room))
	return nil
}
