package backup

import (
	"fmt"
	"log"
	"sort"
)

// EnforceRetention deletes completed backups beyond the newest keep. It
// returns the number of backups removed.
func (m *Manager) EnforceRetention(keep int) (int, error) {
	if !m.busy.TryLock() {
		return 0, ErrBusy
	}
	defer m.busy.Unlock()
	return m.enforceRetention(keep)
}

func (m *Manager) enforceRetention(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	completed, err := m.store.List(StatusCompleted, 10000)
	if err != nil {
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(completed) <= keep {
		return 0, nil
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})

	deleted := 0
	for _, record := range completed[keep:] {
		log.Printf("[Retention] Deleting old backup: %s (created: %s)",
			record.ID, record.CreatedAt.Format("2006-01-02 15:04:05"))

		if err := m.Delete(record.ID, "retention"); err != nil {
			log.Printf("[Retention] Error deleting backup %s: %v", record.ID, err)
			continue
		}
		deleted++
	}

	log.Printf("[Retention] Deleted %d backups, keeping %d", deleted, keep)
	return deleted, nil
}
