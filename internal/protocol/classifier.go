package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule maps lines matching Pattern to an event. Build may reject a match,
// in which case the next rule is tried.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Build   func(line string, match []string) (Event, bool)
}

// Classifier tries its rules in order and falls back to plain output
type Classifier struct {
	rules []Rule
}

// logPrefix matches the leading "[time] [thread/LEVEL]:" groups. Anchoring
// on it keeps chat messages from spoofing roster events.
const (
	logPrefix         = `^(?:\[[^\]]*\]\s*)+:\s*`
	optionalLogPrefix = `^(?:(?:\[[^\]]*\]\s*)+:\s*)?`
)

// Match all ANSI/VT100 escape sequences including CSI, OSC, and other control sequences
var ansiEscapePattern = regexp.MustCompile(`\x1b(\[[0-9;?!]*[A-Za-z>hp]|\([B0]|[=>])`)

// DefaultRules covers vanilla and Bukkit-family server output. The list
// report comes first: it is the most specific and carries the roster. Its
// count phrase varies between releases ("1/20", "1 of a max 20", "1 of a
// max of 20", "1 out of maximum 20") so anything between the two numbers
// is accepted.
var DefaultRules = []Rule{
	{
		Name:    "player_list",
		Pattern: regexp.MustCompile(`(?i)` + optionalLogPrefix + `there are (\d+)\b(?:[^:]*?\b(\d+))? players online:(.*)$`),
		Build: func(line string, m []string) (Event, bool) {
			online, _ := strconv.Atoi(m[1])
			max, _ := strconv.Atoi(m[2])
			return PlayerListReported(line, ParseNames(m[3]), online, max), true
		},
	},
	{
		Name:    "player_joined_login",
		Pattern: regexp.MustCompile(optionalLogPrefix + `(\w+)\[[^\]]*\] logged in\b`),
		Build: func(line string, m []string) (Event, bool) {
			return PlayerJoined(line, m[1]), true
		},
	},
	{
		Name:    "player_joined",
		Pattern: regexp.MustCompile(logPrefix + `(\w+) joined the game$`),
		Build: func(line string, m []string) (Event, bool) {
			return PlayerJoined(line, m[1]), true
		},
	},
	{
		Name:    "player_left",
		Pattern: regexp.MustCompile(logPrefix + `(\w+) left the game$`),
		Build: func(line string, m []string) (Event, bool) {
			return PlayerLeft(line, m[1]), true
		},
	},
}

var defaultClassifier = New(DefaultRules...)

// New creates a classifier from an ordered rule table
func New(rules ...Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify maps a raw console line to exactly one event
func (c *Classifier) Classify(line string) Event {
	text := strings.TrimSpace(StripANSI(line))
	for _, rule := range c.rules {
		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if event, ok := rule.Build(line, match); ok {
			return event
		}
	}
	return PlainOutput(line)
}

// Classify uses DefaultRules
func Classify(line string) Event {
	return defaultClassifier.Classify(line)
}

// ParseNames splits a comma separated player list. Blank entries and
// duplicates are dropped.
func ParseNames(list string) []string {
	names := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// StripANSI removes terminal escape sequences from a line
func StripANSI(line string) string {
	if !strings.Contains(line, "\x1b") {
		return line
	}
	return ansiEscapePattern.ReplaceAllString(line, "")
}
