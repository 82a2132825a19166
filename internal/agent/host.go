package agent

import "context"

// Subscription is returned by every host subscription.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Areas raises enter/leave notifications for named map zones.
type Areas interface {
	OnEnter(area string, fn func()) Subscription
	OnLeave(area string, fn func()) Subscription
}

// Event is a received room broadcast.
type Event struct {
	Name string
	Data any
}

// Events is the room broadcast channel.
type Events interface {
	On(name string, fn func(Event)) Subscription
	Broadcast(ctx context.Context, name string, data any) error
}

// State is the room-scoped shared variable store.
type State interface {
	// Load returns a synchronous snapshot of the variable.
	Load(name string) (any, bool)
	Save(ctx context.Context, name string, value any) error
	OnChange(name string, fn func(value any)) Subscription
}

// Button is a popup action.
type Button struct {
	Label    string
	Callback func(Popup)
}

type Popup interface {
	Close()
}

type UI interface {
	OpenPopup(target, message string, buttons []Button) Popup
}

type Nav interface {
	OpenTab(url string) error
}

type SoundConfig struct {
	Volume float64
	Loop   bool
}

type Sound interface {
	Play(cfg SoundConfig) error
	Stop() error
}

type Audio interface {
	LoadSound(url string) (Sound, error)
}

type Layers interface {
	ShowLayer(name string) error
	HideLayer(name string) error
}

// Host bundles the sandbox primitives the agent runs against.
type Host struct {
	Areas  Areas
	Events Events
	State  State
	UI     UI
	Nav    Nav
	Audio  Audio
	Layers Layers
}

func (h Host) validate() error {
	switch {
	case h.Areas == nil:
		return errMissingPrimitive("Areas")
	case h.Events == nil:
		return errMissingPrimitive("Events")
	case h.State == nil:
		return errMissingPrimitive("State")
	case h.UI == nil:
		return errMissingPrimitive("UI")
	case h.Nav == nil:
		return errMissingPrimitive("Nav")
	case h.Audio == nil:
		return errMissingPrimitive("Audio")
	case h.Layers == nil:
		return errMissingPrimitive("Layers")
	}
	return nil
}

type errMissingPrimitive string

func (e errMissingPrimitive) Error() string {
	return "agent: host is missing " + string(e)
}

// roomClient routes the incident notifier through the host primitives, so a
// zone trigger writes the same variable and event the CLI does. The room
// argument is implied by the session.
type roomClient struct {
	state  State
	events Events
}

func (c roomClient) SaveVariable(ctx context.Context, _ string, name string, value any) error {
	return c.state.Save(ctx, name, value)
}

func (c roomClient) BroadcastEvent(ctx context.Context, _ string, name string, data any) error {
	return c.events.Broadcast(ctx, name, data)
}
