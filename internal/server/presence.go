package server

import "sync"

// PresenceTracker counts live connections per user. A user is online
// while at least one of their connections is open; only the 0-to-1 and
// 1-to-0 transitions are reported to callers.
type PresenceTracker struct {
	mu    sync.Mutex
	conns map[int]int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		conns: make(map[int]int),
	}
}

// Connected records a new connection for userId and reports whether the
// user just came online.
func (p *PresenceTracker) Connected(userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conns[userId]++
	return p.conns[userId] == 1
}

// Disconnected records a closed connection for userId and reports whether
// the user just went offline.
func (p *PresenceTracker) Disconnected(userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.conns[userId]
	if !ok {
		return false
	}

	if n <= 1 {
		delete(p.conns, userId)
		return true
	}

	p.conns[userId] = n - 1
	return false
}

func (p *PresenceTracker) IsOnline(userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conns[userId] > 0
}

// OnlineUserIds returns a snapshot of users with at least one open
// connection.
func (p *PresenceTracker) OnlineUserIds() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	return ids
}
