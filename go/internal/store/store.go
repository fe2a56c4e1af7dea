// Package store holds the client's replica of session state. The snapshot
// is only ever mutated by applying a decoded authority event; user actions
// go out as intents and come back as events. Apply is written to be called
// from a single receive goroutine, with the lock covering concurrent
// readers on the presentation side.
package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breakwater-labs/clocktower/go/internal/model"
	"github.com/breakwater-labs/clocktower/go/internal/protocol"
)

// Store is the authoritative-as-known snapshot of session state.
type Store struct {
	mu        sync.RWMutex
	players   map[string]model.Player
	notes     map[string]model.Note
	landmarks map[string]model.Landmark

	// synced flips on the first full snapshot and never flips back; the
	// store has no notion of connectivity beyond it.
	synced     bool
	generation uint64

	inconsistencies uint64
	log             zerolog.Logger
}

// New returns an empty, unsynced store.
func New(log zerolog.Logger) *Store {
	return &Store{
		players:   map[string]model.Player{},
		notes:     map[string]model.Note{},
		landmarks: map[string]model.Landmark{},
		log:       log.With().Str("component", "store").Logger(),
	}
}

// Apply folds one decoded authority event into the snapshot. Every failure
// path degrades to a logged diagnostic; Apply never panics and never
// returns an error, because the repair mechanism for anything it rejects
// is the next full sync.
func (s *Store) Apply(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := ev.(type) {
	case protocol.FullSnapshot:
		s.applySnapshot(v)
	case protocol.PlayerSet:
		s.applyPlayerSet(v)
	case protocol.PlayerRenamed:
		s.applyPlayerRenamed(v)
	case protocol.PlayerRemoved:
		delete(s.players, v.PlayerID)
	case protocol.ClockSet:
		s.applyClockSet(v)
	case protocol.ClockDeleted:
		s.applyClockDeleted(v)
	case protocol.NoteSet:
		s.applyNoteSet(v)
	case protocol.NoteDeleted:
		delete(s.notes, v.NoteID)
	case protocol.LandmarkSet:
		s.applyLandmarkSet(v)
	case protocol.LandmarkDeleted:
		delete(s.landmarks, v.LandmarkID)
	case protocol.DiagnosticLog:
		s.log.Info().Str("text", v.Text).Msg("authority log")
	case protocol.ProtocolError:
		s.log.Warn().Str("text", v.Text).Msg("authority reported an error")
	case protocol.Unknown:
		// The channel normally filters these; tolerate them anyway.
		s.log.Debug().Str("type", v.Type).Msg("ignoring unknown event")
	}
}

// deltaAllowed gates per-entity updates until the first snapshot arrives.
// Pre-sync deltas are dropped, not queued: the snapshot that ends the
// unsynced state supersedes them by definition.
func (s *Store) deltaAllowed(kind string) bool {
	if s.synced {
		return true
	}
	s.inconsistencies++
	s.log.Warn().Str("event", kind).Msg("dropping delta received before first snapshot")
	return false
}

func (s *Store) applySnapshot(snap protocol.FullSnapshot) {
	players := make(map[string]model.Player, len(snap.Players))
	for id, p := range snap.Players {
		p.ID = id
		clocks := make(map[string]model.Clock, len(p.Clocks))
		for cid, c := range p.Clocks {
			c.ID = cid
			c.PlayerID = id
			if !model.IsValidClock(c) {
				s.inconsistencies++
				s.log.Warn().Str("player_id", id).Str("clock_id", cid).
					Int("slices", c.Slices).Int("progress", c.Progress).
					Msg("snapshot clock violates bounds, dropping")
				continue
			}
			clocks[cid] = c
		}
		p.Clocks = clocks
		players[id] = p
	}

	notes := make(map[string]model.Note, len(snap.Notes))
	for id, n := range snap.Notes {
		n.ID = id
		if !model.IsValidNote(n) {
			s.inconsistencies++
			s.log.Warn().Str("note_id", id).Str("cat", string(n.Cat)).
				Msg("snapshot note has unknown category, dropping")
			continue
		}
		notes[id] = n
	}

	landmarks := make(map[string]model.Landmark, len(snap.Landmarks))
	for id, l := range snap.Landmarks {
		l.ID = id
		if !model.IsValidLandmark(l) {
			s.inconsistencies++
			s.log.Warn().Str("landmark_id", id).Msg("snapshot landmark out of bounds, dropping")
			continue
		}
		landmarks[id] = l
	}

	if ids := worldIDs(players); len(ids) > 1 {
		s.inconsistencies++
		s.log.Error().Strs("player_ids", ids).
			Msg("snapshot contains multiple world players; treating the first as canonical")
	}

	s.players = players
	s.notes = notes
	s.landmarks = landmarks
	s.synced = true
	s.generation++
}

func (s *Store) applyPlayerSet(ev protocol.PlayerSet) {
	if !s.deltaAllowed("PlayerSet") {
		return
	}
	p := ev.Player
	p.ID = ev.PlayerID
	if p.Name == "" {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).Msg("rejecting player with a blank name")
		return
	}
	if p.Clocks == nil {
		p.Clocks = map[string]model.Clock{}
	}

	if p.Name == model.WorldPlayerName {
		if wid := s.worldID(); wid != "" && wid != ev.PlayerID {
			s.inconsistencies++
			s.log.Warn().Str("player_id", ev.PlayerID).Str("world_id", wid).
				Msg("rejecting second world player")
			return
		}
	}
	if existing, ok := s.players[ev.PlayerID]; ok &&
		existing.Name == model.WorldPlayerName && p.Name != model.WorldPlayerName &&
		s.worldID() == ev.PlayerID {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).
			Msg("rejecting update that renames the world player")
		return
	}

	clocks := make(map[string]model.Clock, len(p.Clocks))
	for cid, c := range p.Clocks {
		c.ID = cid
		c.PlayerID = ev.PlayerID
		if !model.IsValidClock(c) {
			s.inconsistencies++
			s.log.Warn().Str("player_id", ev.PlayerID).Str("clock_id", cid).
				Msg("player update carries invalid clock, dropping it")
			continue
		}
		clocks[cid] = c
	}
	p.Clocks = clocks
	s.players[ev.PlayerID] = p
}

func (s *Store) applyPlayerRenamed(ev protocol.PlayerRenamed) {
	if !s.deltaAllowed("PlayerRenamed") {
		return
	}
	if ev.Name == "" {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).Msg("rejecting rename to a blank name")
		return
	}
	p, ok := s.players[ev.PlayerID]
	if !ok {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).Msg("rename references unknown player")
		return
	}
	if s.worldID() == ev.PlayerID {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).Msg("rejecting rename of the world player")
		return
	}
	if ev.Name == model.WorldPlayerName && s.worldID() != "" {
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).
			Msg("rejecting rename to world while a world player exists")
		return
	}
	p.Name = ev.Name
	s.players[ev.PlayerID] = p
}

func (s *Store) applyClockSet(ev protocol.ClockSet) {
	if !s.deltaAllowed("ClockSet") {
		return
	}
	p, ok := s.players[ev.PlayerID]
	if !ok {
		// May legitimately race an in-flight PlayerRemoved; self-heals on
		// the next full sync.
		s.inconsistencies++
		s.log.Warn().Str("player_id", ev.PlayerID).Str("clock_id", ev.ClockID).
			Msg("clock update references unknown player")
		return
	}
	c := ev.Clock
	c.ID = ev.ClockID
	c.PlayerID = ev.PlayerID
	if !model.IsValidClock(c) {
		s.inconsistencies++
		s.log.Warn().Str("clock_id", ev.ClockID).
			Int("slices", c.Slices).Int("progress", c.Progress).
			Msg("clock update violates bounds, dropping")
		return
	}
	p.Clocks[ev.ClockID] = c
	s.players[ev.PlayerID] = p
}

func (s *Store) applyClockDeleted(ev protocol.ClockDeleted) {
	if !s.deltaAllowed("ClockDeleted") {
		return
	}
	p, ok := s.players[ev.PlayerID]
	if !ok {
		// Absent parent on delete is not an inconsistency worth counting:
		// the player and its clocks are already gone.
		return
	}
	delete(p.Clocks, ev.ClockID)
	s.players[ev.PlayerID] = p
}

func (s *Store) applyNoteSet(ev protocol.NoteSet) {
	if !s.deltaAllowed("NoteSet") {
		return
	}
	n := ev.Note
	n.ID = ev.NoteID
	if !model.IsValidNote(n) {
		s.inconsistencies++
		s.log.Warn().Str("note_id", ev.NoteID).Str("cat", string(n.Cat)).
			Msg("note update has unknown category, dropping")
		return
	}
	s.notes[ev.NoteID] = n
}

func (s *Store) applyLandmarkSet(ev protocol.LandmarkSet) {
	if !s.deltaAllowed("LandmarkSet") {
		return
	}
	l := ev.Landmark
	l.ID = ev.LandmarkID
	if !model.IsValidLandmark(l) {
		s.inconsistencies++
		s.log.Warn().Str("landmark_id", ev.LandmarkID).Msg("landmark out of bounds, dropping")
		return
	}
	s.landmarks[ev.LandmarkID] = l
}

// worldID returns the canonical world player id, or "". With duplicates the
// lexicographically smallest id wins, matching the projection's choice.
func (s *Store) worldID() string {
	ids := worldIDs(s.players)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func worldIDs(players map[string]model.Player) []string {
	var ids []string
	for id, p := range players {
		if p.Name == model.WorldPlayerName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Synced reports whether at least one full snapshot has been applied.
func (s *Store) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Generation counts applied snapshots. Useful for spotting a delta that
// straddled a resync when debugging; the protocol itself carries no
// sequence numbers.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Inconsistencies counts rejected or dropped events since startup.
func (s *Store) Inconsistencies() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inconsistencies
}

// Players returns a deep copy of the player map.
func (s *Store) Players() map[string]model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.ClonePlayers(s.players)
}

// Player returns a deep copy of a single player.
func (s *Store) Player(id string) (model.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return model.Player{}, false
	}
	return p.Clone(), true
}

// Notes returns a copy of the note map.
func (s *Store) Notes() map[string]model.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneNotes(s.notes)
}

// Landmarks returns a copy of the landmark map.
func (s *Store) Landmarks() map[string]model.Landmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneLandmarks(s.landmarks)
}

// WorldID returns the canonical world player id, or "" before sync.
func (s *Store) WorldID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worldID()
}
