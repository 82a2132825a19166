// Package agent is the room script: it follows players through map zones and
// mirrors the shared incident flag into popups, sound and a map layer.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/getlavanda/incidentroom/internal/config"
	"github.com/getlavanda/incidentroom/internal/incident"
)

const (
	ZoneClock           = "clock"
	ZoneTriggerIncident = "triggerIncident"
	ZoneResolveIncident = "resolveIncident"
)

const (
	PopupClock            = "clockPopup"
	PopupIncidentAlert    = "incidentAlert"
	PopupIncidentResolved = "incidentResolved"

	ButtonViewIncident = "View Incident"
	ButtonClose        = "Close"
)

// Agent wires one room session's subscriptions to the incident state machine.
type Agent struct {
	host     Host
	cfg      *config.AgentConfig
	logger   *zap.Logger
	now      func() time.Time
	notifier *incident.Notifier

	session *Session
	subs    []Subscription
	ctx     context.Context
}

type Option func(*Agent)

// WithClock overrides the time source of the clock popup.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

func New(host Host, cfg *config.AgentConfig, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if err := host.validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultAgentConfig()
	} else {
		cfg = cfg.Clone()
	}
	cfg.ApplyDefaults()
	for _, link := range cfg.Links {
		switch link.Zone {
		case ZoneClock, ZoneTriggerIncident, ZoneResolveIncident:
			return nil, fmt.Errorf("agent: link zone '%s' clashes with a built-in zone", link.Zone)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Agent{
		host:    host,
		cfg:     cfg,
		now:     time.Now,
		session: newSession(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logger.With(zap.String("session", a.session.ID))
	a.notifier = incident.NewNotifier(roomClient{state: host.State, events: host.Events}, "", incident.WithLogger(a.logger))
	return a, nil
}

func (a *Agent) Session() *Session { return a.session }

// Start registers every subscription for the lifetime of ctx's session and
// reads the initial incident flag. It must run on the host's callback thread.
func (a *Agent) Start(ctx context.Context) error {
	if a.ctx != nil {
		return fmt.Errorf("agent: already started")
	}
	a.ctx = ctx
	s := a.session

	a.subscribe(a.host.Areas.OnEnter(ZoneClock, func() { a.enterClock(s) }))
	a.subscribe(a.host.Areas.OnLeave(ZoneClock, func() { a.leaveClock(s) }))

	for _, link := range a.cfg.Links {
		a.subscribe(a.host.Areas.OnEnter(link.Zone, func() { a.openLink(link) }))
		a.subscribe(a.host.Areas.OnLeave(link.Zone, func() {
			// Tabs opened on enter cannot be closed from here.
			a.logger.Debug("left link zone", zap.String("zone", link.Zone))
		}))
	}

	a.subscribe(a.host.Areas.OnEnter(ZoneTriggerIncident, func() { a.enterTriggerZone(s) }))
	a.subscribe(a.host.Areas.OnEnter(ZoneResolveIncident, func() { a.enterResolveZone(s) }))

	a.subscribe(a.host.Events.On(incident.EventTriggered, func(ev Event) { a.incidentTriggered(s, ev) }))
	a.subscribe(a.host.Events.On(incident.EventResolved, func(ev Event) { a.incidentResolved(s, ev) }))
	a.subscribe(a.host.State.OnChange(incident.VariableName, func(value any) { a.flagChanged(s, value) }))

	// A stale alert is not replayed on reconnect: the snapshot only sets the
	// logical status.
	value, _ := a.host.State.Load(incident.VariableName)
	s.status = incident.StatusFromValue(value)
	if s.status == incident.StatusAlerted {
		a.logger.Info("incident already triggered on load")
	}

	a.logger.Info("room agent started", zap.Int("subscriptions", len(a.subs)))
	return nil
}

// Stop drops every subscription and releases popups and sound.
func (a *Agent) Stop() {
	for _, sub := range a.subs {
		sub.Unsubscribe()
	}
	a.subs = nil
	s := a.session
	s.closeInfoPopup()
	s.closeIncidentPopup()
	if s.sound != nil {
		a.guard("stop sound", s.sound.Stop)
		s.sound = nil
	}
	a.logger.Info("room agent stopped")
}

func (a *Agent) subscribe(sub Subscription) {
	a.subs = append(a.subs, sub)
}

func (a *Agent) enterClock(s *Session) {
	s.closeInfoPopup()
	t := a.now().Format("15:04")
	s.infoPopup = a.host.UI.OpenPopup(PopupClock, "It's "+t, nil)
	a.logger.Debug("clock popup opened", zap.String("time", t))
}

func (a *Agent) leaveClock(s *Session) {
	s.closeInfoPopup()
}

func (a *Agent) openLink(link config.LinkZoneConfig) {
	a.logger.Info("entered link zone", zap.String("zone", link.Zone), zap.String("url", link.URL))
	a.guard("open "+link.Zone, func() error { return a.host.Nav.OpenTab(link.URL) })
}

func (a *Agent) enterTriggerZone(s *Session) {
	url := a.cfg.ZoneIncidentURL
	if url == "" {
		url = incident.NoURLPlaceholder
	}
	if err := a.notifier.Trigger(a.ctx, url); err != nil {
		a.logger.Error("failed to trigger incident from zone", zap.Error(err))
	}
	// The zone owner sees the alert without waiting for its own round trip.
	a.enterAlerted(s, "zone")
}

func (a *Agent) enterResolveZone(s *Session) {
	// Unlike the trigger zone, the local effect comes from the listeners.
	if err := a.notifier.Resolve(a.ctx); err != nil {
		a.logger.Error("failed to resolve incident from zone", zap.Error(err))
	}
}

func (a *Agent) incidentTriggered(s *Session, ev Event) {
	payload := incident.DecodeTriggered(ev.Data)
	a.logger.Info("incident triggered event received", zap.String("incident_url", payload.IncidentURL))

	s.closeIncidentPopup()
	message := fmt.Sprintf("🚨 Incident Alert!\n\nIncident URL: %s\n\nClick to view details.", payload.IncidentURL)
	s.incidentPopup = a.host.UI.OpenPopup(PopupIncidentAlert, message, []Button{
		{
			Label: ButtonViewIncident,
			Callback: func(p Popup) {
				if payload.IncidentURL != incident.NoURLPlaceholder {
					a.guard("open incident", func() error { return a.host.Nav.OpenTab(payload.IncidentURL) })
				}
				s.closePopup(p)
			},
		},
		{Label: ButtonClose, Callback: s.closePopup},
	})

	a.enterAlerted(s, "broadcast")
}

func (a *Agent) incidentResolved(s *Session, ev Event) {
	payload := incident.DecodeResolved(ev.Data)
	a.logger.Info("incident resolved event received", zap.String("message", payload.Message))

	s.closeIncidentPopup()
	s.incidentPopup = a.host.UI.OpenPopup(PopupIncidentResolved, "✅ "+payload.Message, []Button{
		{Label: ButtonClose, Callback: s.closePopup},
	})

	a.enterClear(s, "broadcast")
}

func (a *Agent) flagChanged(s *Session, value any) {
	a.logger.Debug("incident flag changed", zap.Any("value", value))
	if incident.StatusFromValue(value) == incident.StatusAlerted {
		a.enterAlerted(s, "variable")
	} else {
		a.enterClear(s, "variable")
	}
}

// enterAlerted applies the alert effect once per live transition, however
// many sources report it.
func (a *Agent) enterAlerted(s *Session, cause string) {
	s.status = incident.StatusAlerted
	if s.alertActive {
		a.logger.Debug("alert effect already active", zap.String("cause", cause))
		return
	}
	s.alertActive = true
	a.logger.Info("incident alert on", zap.String("cause", cause))

	a.guard("play alert sound", func() error {
		if s.sound != nil {
			_ = s.sound.Stop()
			s.sound = nil
		}
		sound, err := a.host.Audio.LoadSound(a.cfg.Sound.URL)
		if err != nil {
			return err
		}
		s.sound = sound
		return sound.Play(SoundConfig{Volume: *a.cfg.Sound.Volume, Loop: a.cfg.Sound.Loop})
	})
	a.guard("show incident layer", func() error { return a.host.Layers.ShowLayer(a.cfg.IncidentLayer) })
}

func (a *Agent) enterClear(s *Session, cause string) {
	wasAlerted := s.status == incident.StatusAlerted || s.alertActive
	s.status = incident.StatusClear
	if !wasAlerted {
		return
	}
	s.alertActive = false
	a.logger.Info("incident alert off", zap.String("cause", cause))

	a.guard("stop alert sound", func() error {
		if s.sound == nil {
			return nil
		}
		sound := s.sound
		s.sound = nil
		return sound.Stop()
	})
	a.guard("hide incident layer", func() error { return a.host.Layers.HideLayer(a.cfg.IncidentLayer) })
}

// guard runs one effect step, logging its error or panic instead of letting
// it reach the host's callback loop.
func (a *Agent) guard(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("effect panicked", zap.String("step", step), zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		a.logger.Error("effect failed", zap.String("step", step), zap.Error(err))
	}
}
