package initiative

import "sort"

// SortEntries orders combatants by score descending. The sort is stable so
// tied scores keep their insertion order, which keeps the turn order
// deterministic across reads.
func SortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InitiativeScore > sorted[j].InitiativeScore
	})
	return sorted
}

// CurrentCharacter returns the entry whose turn it is, or nil when the
// session has no entries or the index is transiently out of bounds after a
// removal. The next advance re-wraps via modulo.
func CurrentCharacter(session *Session, entries []Entry) *Entry {
	if len(entries) == 0 {
		return nil
	}
	sorted := SortEntries(entries)
	if session.CurrentTurn < 0 || session.CurrentTurn >= len(sorted) {
		return nil
	}
	return &sorted[session.CurrentTurn]
}

// Advance moves the session to the next turn. Advancing an empty session is a
// no-op. Wrapping back to index 0 is the only transition that increments the
// round number.
func Advance(session *Session, entryCount int) {
	if entryCount == 0 {
		return
	}
	session.CurrentTurn = (session.CurrentTurn + 1) % entryCount
	if session.CurrentTurn == 0 {
		session.RoundNumber++
	}
}
