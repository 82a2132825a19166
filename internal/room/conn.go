package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/getlavanda/incidentroom/internal/agent"
)

// ErrClosed is returned when work is posted to a closed connection.
var ErrClosed = errors.New("room: connection closed")

const loadTimeout = 5 * time.Second

type entry[F any] struct {
	id uint64
	fn F
}

// Conn is one session's view of a room. It implements agent.Areas,
// agent.Events and agent.State; every callback it invokes runs on the
// connection's dispatcher, one at a time.
type Conn struct {
	ID      string
	room    string
	backend Backend
	logger  *zap.Logger

	d         *dispatcher
	msgs      <-chan Message
	cancelSub func()
	closeOnce sync.Once

	mu      sync.Mutex
	nextID  uint64
	enter   map[string][]entry[func()]
	leave   map[string][]entry[func()]
	events  map[string][]entry[func(agent.Event)]
	changes map[string][]entry[func(any)]
	cache   map[string]any
}

// Join subscribes a new session to room. Call Run to start delivering
// callbacks.
func Join(ctx context.Context, backend Backend, room string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	msgs, cancel, err := backend.Subscribe(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", room, err)
	}
	id := uuid.NewString()
	return &Conn{
		ID:        id,
		room:      room,
		backend:   backend,
		logger:    logger.With(zap.String("conn", id), zap.String("room", room)),
		d:         newDispatcher(),
		msgs:      msgs,
		cancelSub: cancel,
		enter:     make(map[string][]entry[func()]),
		leave:     make(map[string][]entry[func()]),
		events:    make(map[string][]entry[func(agent.Event)]),
		changes:   make(map[string][]entry[func(any)]),
		cache:     make(map[string]any),
	}, nil
}

// Run pumps room messages into the dispatcher until ctx is done or Close is
// called.
func (c *Conn) Run(ctx context.Context) error {
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.d.run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg, ok := <-c.msgs:
				if !ok {
					c.d.close()
					return nil
				}
				c.Do(func() { c.deliver(msg) })
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancelSub()
		c.d.close()
	})
}

// Do queues fn on the dispatcher. A panic in fn is logged and does not stop
// the connection.
func (c *Conn) Do(fn func()) bool {
	return c.d.post(c.protect(fn))
}

func (c *Conn) protect(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("room callback panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}
}

// Sync runs fn on the dispatcher and waits for it to finish. It returns
// ErrClosed if the connection shuts down before fn gets to run.
func (c *Conn) Sync(ctx context.Context, fn func()) error {
	result := make(chan error, 1)
	run := c.protect(fn)
	if !c.d.postTask(task{
		run:  func() { run(); result <- nil },
		drop: func() { result <- ErrClosed },
	}) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) deliver(msg Message) {
	var data any
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.logger.Warn("dropping message with malformed data", zap.String("name", msg.Name), zap.Error(err))
			return
		}
	}

	switch msg.Kind {
	case KindEvent:
		for _, fn := range handlersFor(c, c.events, msg.Name) {
			fn(agent.Event{Name: msg.Name, Data: data})
		}
	case KindVariable:
		// The bus may drop messages, so a change message only says that the
		// variable moved. The stored value is what sessions converge on.
		if stored, ok := c.fetch(msg.Name); ok {
			data = stored
		}
		c.mu.Lock()
		c.cache[msg.Name] = data
		c.mu.Unlock()
		for _, fn := range handlersFor(c, c.changes, msg.Name) {
			fn(data)
		}
	default:
		c.logger.Debug("ignoring message", zap.String("kind", msg.Kind), zap.String("name", msg.Name))
	}
}

func register[F any](c *Conn, m map[string][]entry[F], name string, fn F) agent.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	m[name] = append(m[name], entry[F]{id: id, fn: fn})

	return agent.SubscriptionFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := m[name]
		for i, e := range list {
			if e.id == id {
				m[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	})
}

func handlersFor[F any](c *Conn, m map[string][]entry[F], name string) []F {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]F, 0, len(m[name]))
	for _, e := range m[name] {
		fns = append(fns, e.fn)
	}
	return fns
}

// ---- agent.Areas ----

func (c *Conn) OnEnter(area string, fn func()) agent.Subscription {
	return register(c, c.enter, area, fn)
}

func (c *Conn) OnLeave(area string, fn func()) agent.Subscription {
	return register(c, c.leave, area, fn)
}

// Enter reports the local player walking into area.
func (c *Conn) Enter(area string) bool {
	return c.Do(func() {
		for _, fn := range handlersFor(c, c.enter, area) {
			fn()
		}
	})
}

// Leave reports the local player walking out of area.
func (c *Conn) Leave(area string) bool {
	return c.Do(func() {
		for _, fn := range handlersFor(c, c.leave, area) {
			fn()
		}
	})
}

// ---- agent.Events ----

func (c *Conn) On(name string, fn func(agent.Event)) agent.Subscription {
	return register(c, c.events, name, fn)
}

func (c *Conn) Broadcast(ctx context.Context, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}
	return c.backend.Publish(ctx, c.room, Message{Kind: KindEvent, Name: name, Data: raw, Origin: c.ID})
}

// ---- agent.State ----

// Load answers from the connection's cache and falls back to the backend the
// first time a variable is read.
func (c *Conn) Load(name string) (any, bool) {
	c.mu.Lock()
	v, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return v, true
	}

	v, ok = c.fetch(name)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	c.cache[name] = v
	c.mu.Unlock()
	return v, true
}

// fetch reads a variable straight from the backend, bypassing the cache.
func (c *Conn) fetch(name string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	raw, found, err := c.backend.Load(ctx, c.room, name)
	if err != nil {
		c.logger.Warn("failed to load variable", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("malformed variable value", zap.String("name", name), zap.Error(err))
		return nil, false
	}
	return v, true
}

func (c *Conn) Save(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode variable %s: %w", name, err)
	}
	if err := c.backend.Save(ctx, c.room, name, raw); err != nil {
		return fmt.Errorf("save variable %s: %w", name, err)
	}

	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()

	if err := c.backend.Publish(ctx, c.room, Message{Kind: KindVariable, Name: name, Data: raw, Origin: c.ID}); err != nil {
		return fmt.Errorf("publish variable %s: %w", name, err)
	}
	return nil
}

func (c *Conn) OnChange(name string, fn func(any)) agent.Subscription {
	return register(c, c.changes, name, fn)
}
