package agent

import (
	"context"
	"errors"
	"strings"
)

// fakeHost is a synchronous host: every callback runs inline on the caller.
// With echo enabled, Save and Broadcast loop back to this session the way the
// real host delivers a session's own writes.
type fakeHost struct {
	echo bool

	enter     map[string][]func()
	leave     map[string][]func()
	listeners map[string][]func(Event)
	watchers  map[string][]func(any)
	vars      map[string]any

	saves      []Event
	broadcasts []Event
	saveErr    error

	popups []*fakePopup
	tabs   []string
	navErr error

	sounds  []*fakeSound
	loadErr error

	layerShows int
	layerHides int
	layerErr   error
	layerPanic bool
	visible    map[string]bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		echo:      true,
		enter:     make(map[string][]func()),
		leave:     make(map[string][]func()),
		listeners: make(map[string][]func(Event)),
		watchers:  make(map[string][]func(any)),
		vars:      make(map[string]any),
		visible:   make(map[string]bool),
	}
}

func (h *fakeHost) Host() Host {
	return Host{Areas: h, Events: fakeEvents{h}, State: h, UI: h, Nav: h, Audio: h, Layers: h}
}

// Subscriptions are cleared by nil-ing the slot so indexes stay stable.
func (h *fakeHost) OnEnter(area string, fn func()) Subscription {
	h.enter[area] = append(h.enter[area], fn)
	i := len(h.enter[area]) - 1
	return SubscriptionFunc(func() { h.enter[area][i] = nil })
}

func (h *fakeHost) OnLeave(area string, fn func()) Subscription {
	h.leave[area] = append(h.leave[area], fn)
	i := len(h.leave[area]) - 1
	return SubscriptionFunc(func() { h.leave[area][i] = nil })
}

func (h *fakeHost) Enter(area string) {
	for _, fn := range h.enter[area] {
		if fn != nil {
			fn()
		}
	}
}

func (h *fakeHost) Leave(area string) {
	for _, fn := range h.leave[area] {
		if fn != nil {
			fn()
		}
	}
}

type fakeEvents struct{ h *fakeHost }

func (e fakeEvents) On(name string, fn func(Event)) Subscription {
	h := e.h
	h.listeners[name] = append(h.listeners[name], fn)
	i := len(h.listeners[name]) - 1
	return SubscriptionFunc(func() { h.listeners[name][i] = nil })
}

func (e fakeEvents) Broadcast(_ context.Context, name string, data any) error {
	e.h.broadcasts = append(e.h.broadcasts, Event{Name: name, Data: data})
	if e.h.echo {
		e.h.Deliver(name, data)
	}
	return nil
}

// Deliver simulates a broadcast arriving from the room.
func (h *fakeHost) Deliver(name string, data any) {
	for _, fn := range h.listeners[name] {
		if fn != nil {
			fn(Event{Name: name, Data: data})
		}
	}
}

func (h *fakeHost) Load(name string) (any, bool) {
	v, ok := h.vars[name]
	return v, ok
}

func (h *fakeHost) Save(_ context.Context, name string, value any) error {
	h.saves = append(h.saves, Event{Name: name, Data: value})
	if h.saveErr != nil {
		return h.saveErr
	}
	h.vars[name] = value
	if h.echo {
		h.Change(name, value)
	}
	return nil
}

func (h *fakeHost) OnChange(name string, fn func(any)) Subscription {
	h.watchers[name] = append(h.watchers[name], fn)
	i := len(h.watchers[name]) - 1
	return SubscriptionFunc(func() { h.watchers[name][i] = nil })
}

// Change simulates another client writing the variable.
func (h *fakeHost) Change(name string, value any) {
	h.vars[name] = value
	for _, fn := range h.watchers[name] {
		if fn != nil {
			fn(value)
		}
	}
}

type fakePopup struct {
	target  string
	message string
	buttons []Button
	closed  bool
}

func (p *fakePopup) Close() { p.closed = true }

func (p *fakePopup) Click(label string) error {
	for _, b := range p.buttons {
		if b.Label == label {
			b.Callback(p)
			return nil
		}
	}
	return errors.New("no button " + label)
}

func (h *fakeHost) OpenPopup(target, message string, buttons []Button) Popup {
	p := &fakePopup{target: target, message: message, buttons: buttons}
	h.popups = append(h.popups, p)
	return p
}

func (h *fakeHost) openPopups() []*fakePopup {
	var open []*fakePopup
	for _, p := range h.popups {
		if !p.closed {
			open = append(open, p)
		}
	}
	return open
}

func (h *fakeHost) popupsContaining(text string) []*fakePopup {
	var found []*fakePopup
	for _, p := range h.popups {
		if strings.Contains(p.message, text) {
			found = append(found, p)
		}
	}
	return found
}

func (h *fakeHost) OpenTab(url string) error {
	if h.navErr != nil {
		return h.navErr
	}
	h.tabs = append(h.tabs, url)
	return nil
}

type fakeSound struct {
	url     string
	played  []SoundConfig
	stopped int
}

func (s *fakeSound) Play(cfg SoundConfig) error {
	s.played = append(s.played, cfg)
	return nil
}

func (s *fakeSound) Stop() error {
	s.stopped++
	return nil
}

func (h *fakeHost) LoadSound(url string) (Sound, error) {
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	s := &fakeSound{url: url}
	h.sounds = append(h.sounds, s)
	return s, nil
}

func (h *fakeHost) playCount() int {
	n := 0
	for _, s := range h.sounds {
		n += len(s.played)
	}
	return n
}

func (h *fakeHost) ShowLayer(name string) error {
	if h.layerPanic {
		panic("layer not found: " + name)
	}
	if h.layerErr != nil {
		return h.layerErr
	}
	h.layerShows++
	h.visible[name] = true
	return nil
}

func (h *fakeHost) HideLayer(name string) error {
	if h.layerErr != nil {
		return h.layerErr
	}
	h.layerHides++
	h.visible[name] = false
	return nil
}
