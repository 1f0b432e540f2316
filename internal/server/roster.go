package server

import (
	"sort"

	"github.com/yourusername/craft-server-manager/internal/protocol"
)

// Roster is the set of players believed online. It is not safe for
// concurrent use; the supervisor guards it with its own mutex.
type Roster struct {
	players map[string]struct{}
}

// NewRoster creates an empty roster
func NewRoster() *Roster {
	return &Roster{players: make(map[string]struct{})}
}

// Apply updates the roster from a classified line and reports whether it changed
func (r *Roster) Apply(event protocol.Event) bool {
	switch event.Kind {
	case protocol.KindPlayerJoined:
		if _, ok := r.players[event.Player]; ok {
			return false
		}
		r.players[event.Player] = struct{}{}
		return true

	case protocol.KindPlayerLeft:
		if _, ok := r.players[event.Player]; !ok {
			return false
		}
		delete(r.players, event.Player)
		return true

	case protocol.KindPlayerList:
		next := make(map[string]struct{}, len(event.Players))
		for _, name := range event.Players {
			next[name] = struct{}{}
		}
		changed := len(next) != len(r.players)
		if !changed {
			for name := range next {
				if _, ok := r.players[name]; !ok {
					changed = true
					break
				}
			}
		}
		r.players = next
		return changed
	}
	return false
}

// Clear empties the roster
func (r *Roster) Clear() {
	r.players = make(map[string]struct{})
}

// Names returns the players in sorted order
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.players))
	for name := range r.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
