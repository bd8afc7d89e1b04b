// Package server keeps the session registry: the table of admitted room
// members, guarded by a single lock.
package server

import (
	"sort"
	"sync"
)

// Entry is one admitted member as reported by Snapshot.
type Entry struct {
	Username string
	Addr     string

	seq uint64
}

// Registry maps each joined peer to its member entry. Every operation
// holds the lock for its full duration, so capacity and uniqueness checks
// cannot interleave with another handler's insert.
type Registry struct {
	mu       sync.RWMutex
	maxUsers int
	entries  map[*Peer]Entry
	nextSeq  uint64
}

// NewRegistry creates an empty registry admitting at most maxUsers members.
func NewRegistry(maxUsers int) *Registry {
	if maxUsers <= 0 {
		maxUsers = defaultMaxUsers
	}
	return &Registry{
		maxUsers: maxUsers,
		entries:  make(map[*Peer]Entry),
	}
}

// MaxUsers returns the admission capacity.
func (r *Registry) MaxUsers() int {
	return r.maxUsers
}

// MaxUsernameLength bounds a username in bytes, which keeps member
// reports within the default frame limit.
const MaxUsernameLength = 64

// Register admits peer under username. A peer that is already a member
// goes through the same checks and, on success, keeps a single entry with
// its first join position.
func (r *Registry) Register(peer *Peer, username string) error {
	return r.Admit(peer, username, nil)
}

// Admit is Register with a hook that runs under the registry lock once the
// entry is in place, before any broadcast can see the new member. The hook
// must not call back into the registry.
func (r *Registry) Admit(peer *Peer, username string, admitted func()) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxUsers {
		return ErrCapacityExceeded
	}
	for _, e := range r.entries {
		if e.Username == username {
			return ErrUsernameTaken
		}
	}

	entry := Entry{Username: username, Addr: peer.Addr()}
	if existing, ok := r.entries[peer]; ok {
		entry.seq = existing.seq
	} else {
		r.nextSeq++
		entry.seq = r.nextSeq
	}
	r.entries[peer] = entry

	if admitted != nil {
		admitted()
	}
	return nil
}

// Unregister removes peer and returns the username it held. The second
// call for the same peer reports false.
func (r *Registry) Unregister(peer *Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[peer]
	if !ok {
		return "", false
	}
	delete(r.entries, peer)
	return entry.Username, true
}

// Count returns the number of live members.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns every live entry in join order, taken under one lock.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

// Peers returns the connections of every live member in join order.
func (r *Registry) Peers() []*Peer {
	type member struct {
		peer *Peer
		seq  uint64
	}

	r.mu.RLock()
	members := make([]member, 0, len(r.entries))
	for p, e := range r.entries {
		members = append(members, member{peer: p, seq: e.seq})
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	peers := make([]*Peer, len(members))
	for i, m := range members {
		peers[i] = m.peer
	}
	return peers
}
