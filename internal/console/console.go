// Package console renders the room agent's UI primitives on a terminal. Popups,
// tabs, sounds and layers are logged and tracked so that an operator (or a
// test) can inspect them and click popup buttons by label.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/getlavanda/incidentroom/internal/agent"
)

// Console implements agent.UI, agent.Nav, agent.Audio and agent.Layers.
type Console struct {
	logger *zap.Logger
	out    io.Writer

	mu     sync.Mutex
	nextID int
	popups []*popup
	layers map[string]bool
	tabs   []string
	sounds map[string]*sound
}

func New(logger *zap.Logger, out io.Writer) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{
		logger: logger,
		out:    out,
		layers: make(map[string]bool),
		sounds: make(map[string]*sound),
	}
}

type popup struct {
	c       *Console
	id      int
	target  string
	message string
	buttons []agent.Button
}

func (p *popup) Close() {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	for i, open := range p.c.popups {
		if open == p {
			p.c.popups = append(p.c.popups[:i:i], p.c.popups[i+1:]...)
			p.c.logger.Debug("popup closed", zap.String("target", p.target), zap.Int("id", p.id))
			return
		}
	}
}

func (c *Console) OpenPopup(target, message string, buttons []agent.Button) agent.Popup {
	c.mu.Lock()
	c.nextID++
	p := &popup{c: c, id: c.nextID, target: target, message: message, buttons: buttons}
	c.popups = append(c.popups, p)
	c.mu.Unlock()

	labels := make([]string, 0, len(buttons))
	for _, b := range buttons {
		labels = append(labels, b.Label)
	}
	c.logger.Info("popup opened", zap.String("target", target), zap.Int("id", p.id), zap.Strings("buttons", labels))
	fmt.Fprintf(c.out, "[%s] %s\n", target, message)
	if len(labels) > 0 {
		fmt.Fprintf(c.out, "  buttons: %s\n", strings.Join(labels, ", "))
	}
	return p
}

// PopupView is a read-only copy of an open popup.
type PopupView struct {
	Target  string
	Message string
	Buttons []string
}

// Popups lists open popups, oldest first.
func (c *Console) Popups() []PopupView {
	c.mu.Lock()
	defer c.mu.Unlock()
	views := make([]PopupView, 0, len(c.popups))
	for _, p := range c.popups {
		v := PopupView{Target: p.target, Message: p.message}
		for _, b := range p.buttons {
			v.Buttons = append(v.Buttons, b.Label)
		}
		views = append(views, v)
	}
	return views
}

// Click presses the button labelled label on the newest popup open at target.
// Labels match case-insensitively. It must be called on the host's callback
// thread, since the button callback runs inline.
func (c *Console) Click(target, label string) error {
	c.mu.Lock()
	var found *popup
	for i := len(c.popups) - 1; i >= 0; i-- {
		if c.popups[i].target == target {
			found = c.popups[i]
			break
		}
	}
	c.mu.Unlock()

	if found == nil {
		return fmt.Errorf("no open popup at %q", target)
	}
	for _, b := range found.buttons {
		if strings.EqualFold(b.Label, label) {
			c.logger.Info("popup button clicked", zap.String("target", target), zap.String("button", b.Label))
			if b.Callback != nil {
				b.Callback(found)
			}
			return nil
		}
	}
	return fmt.Errorf("popup %q has no button %q", target, label)
}

func (c *Console) OpenTab(url string) error {
	c.mu.Lock()
	c.tabs = append(c.tabs, url)
	c.mu.Unlock()
	c.logger.Info("opening tab", zap.String("url", url))
	fmt.Fprintf(c.out, "-> open %s\n", url)
	return nil
}

func (c *Console) Tabs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tabs...)
}

type sound struct {
	c       *Console
	url     string
	playing bool
}

func (s *sound) Play(cfg agent.SoundConfig) error {
	s.c.mu.Lock()
	s.playing = true
	s.c.mu.Unlock()
	s.c.logger.Info("sound playing", zap.String("url", s.url), zap.Float64("volume", cfg.Volume), zap.Bool("loop", cfg.Loop))
	return nil
}

func (s *sound) Stop() error {
	s.c.mu.Lock()
	s.playing = false
	s.c.mu.Unlock()
	s.c.logger.Info("sound stopped", zap.String("url", s.url))
	return nil
}

func (c *Console) LoadSound(url string) (agent.Sound, error) {
	if url == "" {
		return nil, fmt.Errorf("sound url is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sounds[url]
	if !ok {
		s = &sound{c: c, url: url}
		c.sounds[url] = s
	}
	return s, nil
}

// Playing lists the URLs of sounds currently playing, sorted.
func (c *Console) Playing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var urls []string
	for url, s := range c.sounds {
		if s.playing {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

func (c *Console) ShowLayer(name string) error {
	c.setLayer(name, true)
	return nil
}

func (c *Console) HideLayer(name string) error {
	c.setLayer(name, false)
	return nil
}

func (c *Console) setLayer(name string, visible bool) {
	c.mu.Lock()
	c.layers[name] = visible
	c.mu.Unlock()
	c.logger.Info("layer visibility", zap.String("layer", name), zap.Bool("visible", visible))
}

func (c *Console) LayerVisible(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers[name]
}
