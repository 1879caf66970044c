// Package subscription shares live ledger event streams between the parts of
// the client that watch them. Each topic has at most one upstream stream,
// opened by the first subscriber and closed with the last.
package subscription

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dmitrijs2005/sealmail/internal/client/client"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/logging"
)

// Topic is one event kind on one ledger.
type Topic struct {
	Ledger contract.Address
	Event  string
}

// Source opens upstream event streams. client.GRPCClient satisfies it.
type Source interface {
	Subscribe(ctx context.Context, ledger contract.Address, name string) (client.EventStream, error)
}

type topicState struct {
	// ready is closed once the upstream dial has finished; err holds its
	// failure.
	ready  chan struct{}
	err    error
	cancel context.CancelFunc
	subs   map[chan contract.Event]struct{}
}

// Manager is owned by its caller; there is no package-level registry.
type Manager struct {
	src    Source
	logger logging.Logger
	buffer int

	mu     sync.Mutex
	topics map[Topic]*topicState
}

func NewManager(src Source, logger logging.Logger, buffer int) *Manager {
	if buffer <= 0 {
		buffer = 16
	}
	return &Manager{
		src:    src,
		logger: logger.With("module", "subscription"),
		buffer: buffer,
		topics: make(map[Topic]*topicState),
	}
}

// Subscribe returns a channel of the events of t and a cancel func. The
// channel is closed by cancel, or when the upstream stream ends. A slow
// subscriber misses events instead of stalling the others.
func (m *Manager) Subscribe(ctx context.Context, t Topic) (<-chan contract.Event, func(), error) {
	ch := make(chan contract.Event, m.buffer)

	for {
		st, opener := m.acquire(t)
		if opener {
			m.open(ctx, t, st)
		} else {
			select {
			case <-st.ready:
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}
		if st.err != nil {
			return nil, nil, st.err
		}

		m.mu.Lock()
		if m.topics[t] != st {
			// the stream ended before we joined it
			m.mu.Unlock()
			continue
		}
		st.subs[ch] = struct{}{}
		m.mu.Unlock()

		var once sync.Once
		return ch, func() { once.Do(func() { m.unsubscribe(t, st, ch) }) }, nil
	}
}

// acquire returns the state of t, creating it when absent. opener is true
// for the caller that must dial the upstream.
func (m *Manager) acquire(t Topic) (st *topicState, opener bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.topics[t]; ok {
		return st, false
	}
	st = &topicState{ready: make(chan struct{}), subs: make(map[chan contract.Event]struct{})}
	m.topics[t] = st
	return st, true
}

// open dials the upstream of t without holding m.mu, so delivery on other
// topics goes on meanwhile.
func (m *Manager) open(ctx context.Context, t Topic, st *topicState) {
	defer close(st.ready)

	upCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := m.src.Subscribe(upCtx, t.Ledger, t.Event)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		cancel()
		st.err = err
		if m.topics[t] == st {
			delete(m.topics, t)
		}
		return
	}
	st.cancel = cancel
	go m.pump(upCtx, t, st, stream)
}

func (m *Manager) unsubscribe(t Topic, st *topicState, ch chan contract.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := st.subs[ch]; !ok {
		return
	}
	delete(st.subs, ch)
	close(ch)

	if len(st.subs) == 0 {
		st.cancel()
		if m.topics[t] == st {
			delete(m.topics, t)
		}
	}
}

func (m *Manager) pump(ctx context.Context, t Topic, st *topicState, stream client.EventStream) {
	for {
		e, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				m.logger.Warn(ctx, "event stream ended", "ledger", t.Ledger, "event", t.Event, "error", err)
			}
			m.closeTopic(t, st)
			return
		}

		m.mu.Lock()
		for ch := range st.subs {
			select {
			case ch <- e:
			default:
			}
		}
		m.mu.Unlock()
	}
}

func (m *Manager) closeTopic(t Topic, st *topicState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st.cancel()
	for ch := range st.subs {
		delete(st.subs, ch)
		close(ch)
	}
	if m.topics[t] == st {
		delete(m.topics, t)
	}
}

// Active reports the number of topics with an open or opening upstream stream.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics)
}
