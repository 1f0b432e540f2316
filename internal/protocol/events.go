package protocol

// Kind identifies what a console line means for the server state
type Kind string

const (
	KindPlayerList   Kind = "player_list"
	KindPlayerJoined Kind = "player_joined"
	KindPlayerLeft   Kind = "player_left"
	KindOutput       Kind = "output"
)

// Event is the classification of a single console line
type Event struct {
	Kind Kind   `json:"kind"`
	Line string `json:"line"`

	// Player is set for join and leave events
	Player string `json:"player,omitempty"`

	// Players, Online and Max are set for list reports
	Players []string `json:"players,omitempty"`
	Online  int      `json:"online,omitempty"`
	Max     int      `json:"max,omitempty"`
}

// Forwarded reports whether the line belongs in the console text stream.
// List reports are status produced by the periodic probe, not conversation.
func (e Event) Forwarded() bool {
	return e.Kind != KindPlayerList
}

// PlayerListReported builds a list report event
func PlayerListReported(line string, names []string, online, max int) Event {
	return Event{Kind: KindPlayerList, Line: line, Players: names, Online: online, Max: max}
}

// PlayerJoined builds a join event
func PlayerJoined(line, name string) Event {
	return Event{Kind: KindPlayerJoined, Line: line, Player: name}
}

// PlayerLeft builds a leave event
func PlayerLeft(line, name string) Event {
	return Event{Kind: KindPlayerLeft, Line: line, Player: name}
}

// PlainOutput builds an event for a line with no protocol meaning
func PlainOutput(line string) Event {
	return Event{Kind: KindOutput, Line: line}
}
