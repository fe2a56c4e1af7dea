package model

// WorldPlayerName is the reserved name of the session-wide "world" player.
// Exactly one player carries it; that player sorts first, cannot be renamed
// and cannot be removed.
const WorldPlayerName = "world"

// Slice count bounds for a progress clock.
const (
	MinSlices = 1
	MaxSlices = 50
)

// Clock is a segmented progress indicator owned by a player.
type Clock struct {
	ID       string `json:"id"`
	PlayerID string `json:"player_id,omitempty"`
	Task     string `json:"task"`
	Slices   int    `json:"slices"`
	Progress int    `json:"progress"`
}

// Player groups clocks under a display name. The map is keyed by clock id;
// insertion order carries no meaning.
type Player struct {
	ID     string           `json:"id,omitempty"`
	Name   string           `json:"name"`
	Clocks map[string]Clock `json:"clocks"`
}

// Category is the closed set of note categories.
type Category string

const (
	CategoryMisc    Category = "Misc"
	CategoryPerson  Category = "Person"
	CategoryPlace   Category = "Place"
	CategoryBoogins Category = "Boogins"
	CategoryItem    Category = "Item"
	CategoryConcept Category = "Concept"
	CategoryEvent   Category = "Event"
)

// Categories lists every valid note category.
func Categories() []Category {
	return []Category{
		CategoryMisc,
		CategoryPerson,
		CategoryPlace,
		CategoryBoogins,
		CategoryItem,
		CategoryConcept,
		CategoryEvent,
	}
}

// Note is a free-form session note. Notes are top-level entities with no
// owning player.
type Note struct {
	ID    string   `json:"id,omitempty"`
	Title string   `json:"title"`
	Desc  string   `json:"desc"`
	Cat   Category `json:"cat"`
}

// Landmark is a named pin on the session map. Coordinates are fractions of
// the map image, 0.0–1.0 on both axes.
type Landmark struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// IsValidCategory reports whether c is one of the known note categories.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryMisc, CategoryPerson, CategoryPlace, CategoryBoogins,
		CategoryItem, CategoryConcept, CategoryEvent:
		return true
	}
	return false
}

// IsValidClock reports whether c satisfies the clock invariants:
// 1 <= slices <= 50 and 0 <= progress <= slices.
func IsValidClock(c Clock) bool {
	if c.Slices < MinSlices || c.Slices > MaxSlices {
		return false
	}
	return c.Progress >= 0 && c.Progress <= c.Slices
}

// IsValidNote reports whether n carries a recognized category.
func IsValidNote(n Note) bool {
	return IsValidCategory(n.Cat)
}

// IsValidLandmark reports whether l sits inside the map bounds.
func IsValidLandmark(l Landmark) bool {
	return l.X >= 0 && l.X <= 1 && l.Y >= 0 && l.Y <= 1
}

// Clone returns a deep copy of the player, including its clock map.
func (p Player) Clone() Player {
	out := p
	out.Clocks = make(map[string]Clock, len(p.Clocks))
	for id, c := range p.Clocks {
		out.Clocks[id] = c
	}
	return out
}

// ClonePlayers deep-copies a player map.
func ClonePlayers(players map[string]Player) map[string]Player {
	out := make(map[string]Player, len(players))
	for id, p := range players {
		out[id] = p.Clone()
	}
	return out
}

// CloneNotes copies a note map.
func CloneNotes(notes map[string]Note) map[string]Note {
	out := make(map[string]Note, len(notes))
	for id, n := range notes {
		out[id] = n
	}
	return out
}

// CloneLandmarks copies a landmark map.
func CloneLandmarks(landmarks map[string]Landmark) map[string]Landmark {
	out := make(map[string]Landmark, len(landmarks))
	for id, l := range landmarks {
		out[id] = l
	}
	return out
}
