package console

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/craft-server-manager/internal/server"
)

// StatusRecord is the persisted supervisor status
type StatusRecord struct {
	State            server.State `json:"state"`
	PID              int          `json:"pid,omitempty"`
	Generation       string       `json:"generation,omitempty"`
	LastStarted      *time.Time   `json:"last_started,omitempty"`
	LastStopped      *time.Time   `json:"last_stopped,omitempty"`
	LastExitCode     *int         `json:"last_exit_code,omitempty"`
	LastExitExpected *bool        `json:"last_exit_expected,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// StatusStore keeps the single server_status row current
type StatusStore struct {
	db *sql.DB
}

func NewStatusStore(db *sql.DB) *StatusStore {
	return &StatusStore{db: db}
}

// RecordState stores a state transition. Running stamps last_started,
// stopped stamps last_stopped and clears the pid.
func (s *StatusStore) RecordState(state server.State, generation string, pid int, at time.Time) error {
	at = at.UTC()

	var started, stopped sql.NullTime
	switch state {
	case server.StateRunning:
		started = sql.NullTime{Time: at, Valid: true}
	case server.StateStopped:
		stopped = sql.NullTime{Time: at, Valid: true}
		pid = 0
		generation = ""
	}

	_, err := s.db.Exec(`
		INSERT INTO server_status (id, state, pid, generation, last_started, last_stopped, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			pid = excluded.pid,
			generation = excluded.generation,
			last_started = COALESCE(excluded.last_started, server_status.last_started),
			last_stopped = COALESCE(excluded.last_stopped, server_status.last_stopped),
			updated_at = excluded.updated_at
	`, string(state), nullInt(pid), nullString(generation), started, stopped, at)
	if err != nil {
		return fmt.Errorf("failed to record server state: %w", err)
	}
	return nil
}

// RecordExit stores how the last process ended
func (s *StatusStore) RecordExit(exit server.ProcessExited) error {
	at := exit.ExitedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO server_status (id, state, last_exit_code, last_exit_expected, error_message, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_exit_code = excluded.last_exit_code,
			last_exit_expected = excluded.last_exit_expected,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, string(server.StateStopped), exit.ExitCode, exit.Expected, nullString(exit.Error), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record server exit: %w", err)
	}
	return nil
}

// Get returns the persisted status, or nil when nothing was recorded yet
func (s *StatusStore) Get() (*StatusRecord, error) {
	var (
		record       StatusRecord
		state        string
		pid          sql.NullInt64
		generation   sql.NullString
		started      sql.NullTime
		stopped      sql.NullTime
		exitCode     sql.NullInt64
		exitExpected sql.NullBool
		errorMessage sql.NullString
	)

	err := s.db.QueryRow(`
		SELECT state, pid, generation, last_started, last_stopped,
		       last_exit_code, last_exit_expected, error_message, updated_at
		FROM server_status WHERE id = 1
	`).Scan(&state, &pid, &generation, &started, &stopped, &exitCode, &exitExpected, &errorMessage, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load server status: %w", err)
	}

	record.State = server.State(state)
	record.PID = int(pid.Int64)
	record.Generation = generation.String
	record.ErrorMessage = errorMessage.String
	if started.Valid {
		record.LastStarted = &started.Time
	}
	if stopped.Valid {
		record.LastStopped = &stopped.Time
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		record.LastExitCode = &code
	}
	if exitExpected.Valid {
		record.LastExitExpected = &exitExpected.Bool
	}
	return &record, nil
}

// PlayerSession is one stretch of a player being online
type PlayerSession struct {
	ID         int64      `json:"id"`
	Player     string     `json:"player"`
	Generation string     `json:"generation"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}

// PlayerSessions derives player_sessions rows from roster snapshots
type PlayerSessions struct {
	db *sql.DB
}

func NewPlayerSessions(db *sql.DB) *PlayerSessions {
	return &PlayerSessions{db: db}
}

// Reconcile makes the open sessions match online: players no longer online
// are closed, new ones are opened. Sessions left open by an earlier
// generation are closed and reopened under the current one.
func (p *PlayerSessions) Reconcile(generation string, online []string, at time.Time) error {
	at = at.UTC()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin player session update: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, player, generation FROM player_sessions WHERE left_at IS NULL`)
	if err != nil {
		return fmt.Errorf("failed to query open sessions: %w", err)
	}

	open := make(map[string]int64)
	var stale []int64
	for rows.Next() {
		var id int64
		var player, gen string
		if err := rows.Scan(&id, &player, &gen); err != nil {
			rows.Close()
			return err
		}
		if _, dup := open[player]; dup || gen != generation {
			stale = append(stale, id)
			continue
		}
		open[player] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	wanted := make(map[string]bool, len(online))
	for _, name := range online {
		wanted[name] = true
	}
	for player, id := range open {
		if !wanted[player] {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		if _, err := tx.Exec(`UPDATE player_sessions SET left_at = ? WHERE id = ?`, at, id); err != nil {
			return fmt.Errorf("failed to close player session: %w", err)
		}
	}

	for _, name := range online {
		if _, ok := open[name]; ok {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO player_sessions (player, generation, joined_at) VALUES (?, ?, ?)
		`, name, generation, at); err != nil {
			return fmt.Errorf("failed to open player session: %w", err)
		}
	}

	return tx.Commit()
}

// CloseAll closes every open session
func (p *PlayerSessions) CloseAll(at time.Time) error {
	if _, err := p.db.Exec(`UPDATE player_sessions SET left_at = ? WHERE left_at IS NULL`, at.UTC()); err != nil {
		return fmt.Errorf("failed to close player sessions: %w", err)
	}
	return nil
}

// Recent returns the newest sessions, optionally for one player
func (p *PlayerSessions) Recent(player string, limit int) ([]PlayerSession, error) {
	query := `SELECT id, player, generation, joined_at, left_at FROM player_sessions`
	args := make([]interface{}, 0, 2)
	if player != "" {
		query += ` WHERE player = ?`
		args = append(args, player)
	}
	query += ` ORDER BY joined_at DESC, id DESC LIMIT ?`
	args = append(args, defaultLimit(limit, 100))

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player sessions: %w", err)
	}
	defer rows.Close()

	sessions := []PlayerSession{}
	for rows.Next() {
		var session PlayerSession
		var left sql.NullTime
		if err := rows.Scan(&session.ID, &session.Player, &session.Generation, &session.JoinedAt, &left); err != nil {
			return nil, err
		}
		if left.Valid {
			session.LeftAt = &left.Time
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func nullInt(value int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(value), Valid: value > 0}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
