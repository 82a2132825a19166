// Package room is a local stand-in for the virtual-world host: a room-scoped
// shared variable store plus a broadcast bus, with per-session callback
// dispatch.
package room

import (
	"context"
	"encoding/json"
	"sync"
)

const (
	KindVariable = "variable"
	KindEvent    = "event"
)

// Message travels on a room's bus. Variable writes are published too so that
// every session, the writer included, sees the change.
type Message struct {
	Kind   string          `json:"kind"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// Backend stores variables and fans messages out per room.
type Backend interface {
	Load(ctx context.Context, room, name string) ([]byte, bool, error)
	Save(ctx context.Context, room, name string, value []byte) error
	Publish(ctx context.Context, room string, msg Message) error
	Subscribe(ctx context.Context, room string) (<-chan Message, func(), error)
}

type memorySubscriber struct {
	ch chan Message
}

// MemoryBackend keeps everything in process. Slow subscribers lose messages
// once their buffer is full, which matches the at-most-once broadcast
// contract of the real host.
type MemoryBackend struct {
	mu      sync.RWMutex
	vars    map[string][]byte
	subs    map[string][]*memorySubscriber
	bufSize int
}

func NewMemoryBackend(bufSize int) *MemoryBackend {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemoryBackend{
		vars:    make(map[string][]byte),
		subs:    make(map[string][]*memorySubscriber),
		bufSize: bufSize,
	}
}

func memoryKey(room, name string) string {
	return room + "\x00" + name
}

func (m *MemoryBackend) Load(_ context.Context, room, name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[memoryKey(room, name)]
	return v, ok, nil
}

func (m *MemoryBackend) Save(_ context.Context, room, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[memoryKey(room, name)] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Publish(_ context.Context, room string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs[room] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (m *MemoryBackend) Subscribe(_ context.Context, room string) (<-chan Message, func(), error) {
	sub := &memorySubscriber{ch: make(chan Message, m.bufSize)}

	m.mu.Lock()
	m.subs[room] = append(m.subs[room], sub)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			list := m.subs[room]
			for i, s := range list {
				if s == sub {
					m.subs[room] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}
