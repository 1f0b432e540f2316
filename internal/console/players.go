package console

import (
	"fmt"
	"regexp"
)

// Player actions map to vanilla server commands
var playerActions = map[string]string{
	"kick":   "kick %s",
	"ban":    "ban %s",
	"pardon": "pardon %s",
	"op":     "op %s",
	"deop":   "deop %s",
}

var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// PlayerAction runs a moderation command against player and returns the
// command that was sent
func (s *Session) PlayerAction(actor, action, player string) (string, error) {
	format, ok := playerActions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown player action %q", ErrInvalidCommand, action)
	}
	if !playerNamePattern.MatchString(player) {
		return "", fmt.Errorf("%w: invalid player name %q", ErrInvalidCommand, player)
	}

	command, err := s.ExecuteCommand(actor, fmt.Sprintf(format, player))
	if s.activity != nil {
		s.activity.LogPlayerAction(actor, action, player, err)
	}
	return command, err
}
