package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// ActivityFilter narrows Query. Zero fields match everything.
type ActivityFilter struct {
	Type  string
	Actor string
	Since time.Time
	Limit int
}

func (f ActivityFilter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if f.Type != "" {
		clauses = append(clauses, "activity_type = ?")
		args = append(args, f.Type)
	}
	if f.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, f.Actor)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Query returns matching activities, newest first
func (al *ActivityLogger) Query(f ActivityFilter) ([]*Activity, error) {
	if al.db == nil {
		return nil, errNoDatabase
	}

	where, args := f.where()
	query := `SELECT id, timestamp, actor, activity_type, description, metadata, success, error_message
		FROM activity_log` + where + ` ORDER BY timestamp DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []*Activity{}
	for rows.Next() {
		var (
			a        Activity
			actor    sql.NullString
			metadata sql.NullString
			errMsg   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &actor, &a.ActivityType, &a.Description, &metadata, &a.Success, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Actor = actor.String
		a.ErrorMessage = errMsg.String
		if metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
				log.Printf("[Activity] Warning: unreadable metadata on activity %d: %v", a.ID, err)
			}
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// GetActivities is Query filtered by type and start time
func (al *ActivityLogger) GetActivities(activityType string, since time.Time, limit int) ([]*Activity, error) {
	return al.Query(ActivityFilter{Type: activityType, Since: since, Limit: limit})
}

// Stats counts activities per type since a point in time
func (al *ActivityLogger) Stats(since time.Time) (map[string]int, error) {
	if al.db == nil {
		return nil, errNoDatabase
	}

	where, args := ActivityFilter{Since: since}.where()
	rows, err := al.db.Query(`SELECT activity_type, COUNT(*) FROM activity_log`+where+` GROUP BY activity_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var activityType string
		var count int
		if err := rows.Scan(&activityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity count: %w", err)
		}
		stats[activityType] = count
	}
	return stats, rows.Err()
}

// Prune deletes activities older than olderThan and returns how many went
func (al *ActivityLogger) Prune(olderThan time.Duration) (int64, error) {
	if al.db == nil {
		return 0, errNoDatabase
	}
	result, err := al.db.Exec(`DELETE FROM activity_log WHERE timestamp < ?`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune activities: %w", err)
	}
	return result.RowsAffected()
}
