// internal/match/turns.go
package match

import "github.com/google/uuid"

// NextTurnHolder picks who acts next after removedID leaves a match.
//
// originalOrder is the turn rotation snapshotted at match start, remainingIDs
// are the participants still present in turn order (removedID already
// excluded), and currentID is the holder before the removal (uuid.Nil if
// none).
//
// The rotation starts immediately after the removed player's original
// position and skips ids no longer present, so the invariant "the turn
// holder is always a live participant" survives arbitrary mid-match
// departures. A removed id that never appeared in originalOrder rotates
// from the head of the list. Returns uuid.Nil when nobody remains.
func NextTurnHolder(originalOrder []uuid.UUID, remainingIDs []uuid.UUID, removedID, currentID uuid.UUID) uuid.UUID {
	if len(remainingIDs) == 0 {
		return uuid.Nil
	}

	remaining := make(map[uuid.UUID]bool, len(remainingIDs))
	for _, id := range remainingIDs {
		remaining[id] = true
	}

	// If the holder is still seated, the turn does not move.
	if currentID != uuid.Nil && remaining[currentID] {
		return currentID
	}

	start := 0
	for i, id := range originalOrder {
		if id == removedID {
			start = i + 1
			break
		}
	}

	for i := 0; i < len(originalOrder); i++ {
		id := originalOrder[(start+i)%len(originalOrder)]
		if remaining[id] {
			return id
		}
	}

	// Nobody from the original rotation is left.
	return remainingIDs[0]
}
