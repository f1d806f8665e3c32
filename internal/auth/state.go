package auth

import "github.com/gptkit/gptkit-cli/internal/models"

// State is the session lifecycle position.
type State int

const (
	StateLoggedOut State = iota
	StateBootstrapping
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Snapshot is the externally visible session state. It never carries tokens.
type Snapshot struct {
	State State
	User  *models.User
}

// Subscribe returns a channel receiving a Snapshot after every session change,
// starting with the current one. The channel holds only the latest snapshot:
// a slow reader skips intermediate states but never sees them out of order.
// Call the returned func to unsubscribe; it closes the channel.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.subs == nil {
		m.subs = make(map[int]chan Snapshot)
	}
	m.subs[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	var once bool
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(m.subs, id)
		close(ch)
	}
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// publishLocked delivers the current snapshot to every subscriber, replacing
// any snapshot still waiting to be read. Callers hold m.mu, so sends never
// race with each other and the buffered send cannot block.
func (m *Manager) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// setStateLocked moves to s and publishes when it differs from the current state.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.publishLocked()
}
