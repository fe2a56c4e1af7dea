// Package view derives presentation orderings from store state. Pure reads,
// no side effects; callers recompute on every state change.
package view

import (
	"sort"

	"github.com/breakwater-labs/clocktower/go/internal/model"
)

// PlayerOrder returns player ids in display order: the world player first,
// the current viewer second, everyone else by descending clock count. The
// sort is stable over an id-sorted base so equal-count players do not
// shuffle between renders.
func PlayerOrder(players map[string]model.Player, viewerID string) []string {
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	world := ""
	for _, id := range ids {
		if players[id].Name == model.WorldPlayerName {
			world = id
			break
		}
	}

	rank := func(id string) int {
		switch id {
		case world:
			return 0
		case viewerID:
			return 1
		}
		return 2
	}

	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := rank(ids[i]), rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		if ri != 2 {
			return false
		}
		return len(players[ids[i]].Clocks) > len(players[ids[j]].Clocks)
	})

	return ids
}

// ClockOrder returns clock ids in id order, the stable order clocks render
// in within a player's bar.
func ClockOrder(clocks map[string]model.Clock) []string {
	ids := make([]string, 0, len(clocks))
	for id := range clocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NoteSort names an ordering for the notes board.
type NoteSort string

const (
	NotesByDate  NoteSort = "date" // id order; the authority's uuids sort by creation
	NotesByTitle NoteSort = "name"
	NotesByCat   NoteSort = "type"
)

// NoteOrder returns note ids sorted by the requested key, optionally
// filtered to a single category (empty filter keeps everything).
func NoteOrder(notes map[string]model.Note, by NoteSort, filter model.Category) []string {
	ids := make([]string, 0, len(notes))
	for id, n := range notes {
		if filter != "" && n.Cat != filter {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	switch by {
	case NotesByTitle:
		sort.SliceStable(ids, func(i, j int) bool {
			return notes[ids[i]].Title < notes[ids[j]].Title
		})
	case NotesByCat:
		sort.SliceStable(ids, func(i, j int) bool {
			return notes[ids[i]].Cat < notes[ids[j]].Cat
		})
	}

	return ids
}
