package sink

import "sync"

// stage buffers the rows of SCD2 loads until Complete. SCD2 needs the full
// snapshot to tell absent rows from unchanged ones.
type stage struct {
	mu   sync.Mutex
	rows map[string][]row
}

func newStage() *stage {
	return &stage{rows: make(map[string][]row)}
}

func stageKey(table, loadID string) string {
	return table + "\x00" + loadID
}

func (s *stage) add(table, loadID string, rows []row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stageKey(table, loadID)
	s.rows[k] = append(s.rows[k], rows...)
}

func (s *stage) take(table, loadID string) []row {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stageKey(table, loadID)
	rows := s.rows[k]
	delete(s.rows, k)
	return dedupe(rows)
}

func (s *stage) drop(table, loadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, stageKey(table, loadID))
}

// pending is the number of loads with staged rows.
func (s *stage) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// active is a currently valid SCD2 version.
type active struct {
	key  string
	hash string
}

// reconcile compares a snapshot with the active versions. It returns the keys
// whose active version must be closed and the rows to insert as new versions.
func reconcile(current []active, snapshot []row) (closeKeys []string, insert []row) {
	currentHash := make(map[string]string, len(current))
	for _, a := range current {
		currentHash[a.key] = a.hash
	}

	seen := make(map[string]bool, len(snapshot))
	for _, r := range snapshot {
		seen[r.key] = true
		h, ok := currentHash[r.key]
		switch {
		case !ok:
			insert = append(insert, r)
		case h != r.hash:
			closeKeys = append(closeKeys, r.key)
			insert = append(insert, r)
		}
	}

	for _, a := range current {
		if !seen[a.key] {
			closeKeys = append(closeKeys, a.key)
		}
	}
	return closeKeys, insert
}
