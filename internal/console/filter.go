package console

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Filter types accepted by NewOutputFilter
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

// Java servers tag log lines as "[12:00:00 WARN]:" or "[Server thread/ERROR]:"
var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"severe",
	"warn",
	"failed",
	"caused by",
	"stacktrace",
	"can't keep up",
}

// OutputFilter filters buffered console output
type OutputFilter struct {
	FilterType    string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// FilterResult represents the result of filtering a line
type FilterResult struct {
	Include   bool
	Highlight []int // start/end of the first match
}

// NewOutputFilter creates a new output filter. An empty filter type means none.
func NewOutputFilter(filterType, pattern string, caseSensitive bool) (*OutputFilter, error) {
	if filterType == "" {
		filterType = FilterNone
	}

	filter := &OutputFilter{
		FilterType:    filterType,
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
	}

	switch filterType {
	case FilterNone, FilterErrors, FilterSearch:
	case FilterRegex:
		if pattern == "" {
			break
		}
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		filter.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter type %q", filterType)
	}

	return filter, nil
}

// Filter applies the filter to a line of output
func (f *OutputFilter) Filter(line string) FilterResult {
	result := FilterResult{Include: true, Highlight: []int{}}

	switch f.FilterType {
	case FilterErrors:
		match := firstKeyword(line)
		result.Include = match != nil
		if match != nil {
			result.Highlight = match
		}

	case FilterSearch:
		if f.Pattern == "" {
			return result
		}
		haystack, needle := line, f.Pattern
		if !f.CaseSensitive {
			haystack = strings.ToLower(line)
			needle = strings.ToLower(f.Pattern)
		}
		idx := strings.Index(haystack, needle)
		result.Include = idx >= 0
		if idx >= 0 {
			result.Highlight = []int{idx, idx + len(needle)}
		}

	case FilterRegex:
		if f.regex == nil {
			return result
		}
		match := f.regex.FindStringIndex(line)
		result.Include = match != nil
		if match != nil {
			result.Highlight = match
		}
	}

	return result
}

func firstKeyword(line string) []int {
	lower := strings.ToLower(line)
	for _, keyword := range errorKeywords {
		if idx := strings.Index(lower, keyword); idx >= 0 {
			return []int{idx, idx + len(keyword)}
		}
	}
	return nil
}

// FilterLines applies the filter to multiple lines
func (f *OutputFilter) FilterLines(lines []string) []string {
	if f.FilterType == FilterNone {
		return lines
	}

	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if f.Filter(line).Include {
			filtered = append(filtered, line)
		}
	}
	return filtered
}

// CommandRecord represents a command history record
type CommandRecord struct {
	ID         int64     `json:"id"`
	Actor      string    `json:"actor"`
	Command    string    `json:"command"`
	ExecutedAt time.Time `json:"executed_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// CommandHistory stores console commands sent by operators
type CommandHistory struct {
	db *sql.DB
}

// NewCommandHistory creates a new command history manager
func NewCommandHistory(db *sql.DB) *CommandHistory {
	return &CommandHistory{db: db}
}

// Save records a command and whether it reached the server
func (ch *CommandHistory) Save(actor, command string, sendErr error) error {
	var errText sql.NullString
	if sendErr != nil {
		errText = sql.NullString{String: sendErr.Error(), Valid: true}
	}

	_, err := ch.db.Exec(`
		INSERT INTO console_commands (actor, command, executed_at, success, error)
		VALUES (?, ?, ?, ?, ?)
	`, actor, command, time.Now().UTC(), sendErr == nil, errText)
	if err != nil {
		return fmt.Errorf("failed to save command history: %w", err)
	}
	return nil
}

const commandColumns = `SELECT id, actor, command, executed_at, success, error FROM console_commands`

// GetRecentCommands returns the newest commands
func (ch *CommandHistory) GetRecentCommands(limit int) ([]CommandRecord, error) {
	return ch.query(commandColumns+` ORDER BY executed_at DESC, id DESC LIMIT ?`, defaultLimit(limit, 50))
}

// GetActorCommands returns commands executed by one operator
func (ch *CommandHistory) GetActorCommands(actor string, limit int) ([]CommandRecord, error) {
	return ch.query(commandColumns+` WHERE actor = ? ORDER BY executed_at DESC, id DESC LIMIT ?`,
		actor, defaultLimit(limit, 50))
}

// SearchCommands returns commands containing query
func (ch *CommandHistory) SearchCommands(query string, limit int) ([]CommandRecord, error) {
	return ch.query(commandColumns+` WHERE command LIKE ? ESCAPE '\' ORDER BY executed_at DESC, id DESC LIMIT ?`,
		"%"+escapeLike(query)+"%", defaultLimit(limit, 50))
}

// GetAutocomplete returns distinct previously successful commands starting
// with prefix, most recently used first
func (ch *CommandHistory) GetAutocomplete(prefix string, limit int) ([]string, error) {
	rows, err := ch.db.Query(`
		SELECT command
		FROM console_commands
		WHERE success = 1 AND command LIKE ? ESCAPE '\'
		GROUP BY command
		ORDER BY MAX(id) DESC
		LIMIT ?
	`, escapeLike(prefix)+"%", defaultLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to query autocomplete: %w", err)
	}
	defer rows.Close()

	suggestions := []string{}
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, cmd)
	}
	return suggestions, rows.Err()
}

func (ch *CommandHistory) query(query string, args ...interface{}) ([]CommandRecord, error) {
	rows, err := ch.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query command history: %w", err)
	}
	defer rows.Close()

	commands := []CommandRecord{}
	for rows.Next() {
		var cmd CommandRecord
		var errText sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Actor, &cmd.Command, &cmd.ExecutedAt, &cmd.Success, &errText); err != nil {
			return nil, err
		}
		cmd.Error = errText.String
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func defaultLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
