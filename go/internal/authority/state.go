// Package authority is the reference session server: it owns the canonical
// copy of shared state, applies client intents and broadcasts the matching
// delta update to every connection. State lives in memory only; a session
// lasts as long as the process.
package authority

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breakwater-labs/clocktower/go/internal/model"
	"github.com/breakwater-labs/clocktower/go/internal/protocol"
)

// State is the canonical session state. Mutations return the delta update
// to broadcast so the caller never reaches back into the maps.
type State struct {
	mu        sync.Mutex
	players   map[string]model.Player
	notes     map[string]model.Note
	landmarks map[string]model.Landmark
	log       zerolog.Logger
}

// NewState creates a session containing only the world player.
func NewState(log zerolog.Logger) *State {
	s := &State{
		players:   map[string]model.Player{},
		notes:     map[string]model.Note{},
		landmarks: map[string]model.Landmark{},
		log:       log.With().Str("component", "state").Logger(),
	}
	id := uuid.NewString()
	s.players[id] = model.Player{
		ID:     id,
		Name:   model.WorldPlayerName,
		Clocks: map[string]model.Clock{},
	}
	return s
}

// Snapshot returns a full copy of the session for a FullUpdate.
func (s *State) Snapshot() protocol.FullSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.FullSnapshot{
		Players:   model.ClonePlayers(s.players),
		Notes:     model.CloneNotes(s.notes),
		Landmarks: model.CloneLandmarks(s.landmarks),
	}
}

// AddPlayer creates a player. The reserved world name is refused; the
// session already has exactly one.
func (s *State) AddPlayer(name string) (protocol.PlayerSet, error) {
	if name == "" {
		return protocol.PlayerSet{}, fmt.Errorf("player name must not be blank")
	}
	if name == model.WorldPlayerName {
		return protocol.PlayerSet{}, fmt.Errorf("the name %q is reserved", model.WorldPlayerName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	p := model.Player{ID: id, Name: name, Clocks: map[string]model.Clock{}}
	s.players[id] = p
	return protocol.PlayerSet{PlayerID: id, Player: p.Clone()}, nil
}

// RenamePlayer changes a player's display name. The world player keeps its
// name, and nobody else may take it.
func (s *State) RenamePlayer(id, name string) (protocol.PlayerRenamed, error) {
	if name == "" {
		return protocol.PlayerRenamed{}, fmt.Errorf("player name must not be blank")
	}
	if name == model.WorldPlayerName {
		return protocol.PlayerRenamed{}, fmt.Errorf("the name %q is reserved", model.WorldPlayerName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return protocol.PlayerRenamed{}, fmt.Errorf("unknown player %s", id)
	}
	if p.Name == model.WorldPlayerName {
		return protocol.PlayerRenamed{}, fmt.Errorf("the world player cannot be renamed")
	}
	p.Name = name
	s.players[id] = p
	return protocol.PlayerRenamed{PlayerID: id, Name: name}, nil
}

// RemovePlayer deletes a player and, implicitly, its clocks. Removing an
// unknown id succeeds; deletes are tolerant by design. The world player
// cannot be removed.
func (s *State) RemovePlayer(id string) (protocol.PlayerRemoved, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[id]; ok && p.Name == model.WorldPlayerName {
		return protocol.PlayerRemoved{}, fmt.Errorf("the world player cannot be removed")
	}
	delete(s.players, id)
	return protocol.PlayerRemoved{PlayerID: id}, nil
}

// AddClock creates a zero-progress clock for a player.
func (s *State) AddClock(playerID, task string, slices int) (protocol.ClockSet, error) {
	if slices < model.MinSlices || slices > model.MaxSlices {
		return protocol.ClockSet{}, fmt.Errorf("slices %d outside [%d,%d]", slices, model.MinSlices, model.MaxSlices)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return protocol.ClockSet{}, fmt.Errorf("unknown player %s", playerID)
	}
	c := model.Clock{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Task:     task,
		Slices:   slices,
	}
	p.Clocks[c.ID] = c
	s.players[playerID] = p
	return protocol.ClockSet{PlayerID: playerID, ClockID: c.ID, Clock: c}, nil
}

// IncrementClock advances a clock one slice, clamped at full.
func (s *State) IncrementClock(playerID, clockID string) (protocol.ClockSet, error) {
	return s.stepClock(playerID, clockID, +1)
}

// DecrementClock winds a clock back one slice, clamped at zero.
func (s *State) DecrementClock(playerID, clockID string) (protocol.ClockSet, error) {
	return s.stepClock(playerID, clockID, -1)
}

func (s *State) stepClock(playerID, clockID string, delta int) (protocol.ClockSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return protocol.ClockSet{}, fmt.Errorf("unknown player %s", playerID)
	}
	c, ok := p.Clocks[clockID]
	if !ok {
		return protocol.ClockSet{}, fmt.Errorf("unknown clock %s", clockID)
	}

	c.Progress += delta
	if c.Progress > c.Slices {
		c.Progress = c.Slices
	}
	if c.Progress < 0 {
		c.Progress = 0
	}

	p.Clocks[clockID] = c
	s.players[playerID] = p
	return protocol.ClockSet{PlayerID: playerID, ClockID: clockID, Clock: c}, nil
}

// DeleteClock removes a clock; absent ids are tolerated.
func (s *State) DeleteClock(playerID, clockID string) (protocol.ClockDeleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[playerID]; ok {
		delete(p.Clocks, clockID)
		s.players[playerID] = p
	}
	return protocol.ClockDeleted{PlayerID: playerID, ClockID: clockID}, nil
}

// AddNote creates a note.
func (s *State) AddNote(title, desc string, cat model.Category) (protocol.NoteSet, error) {
	if !model.IsValidCategory(cat) {
		return protocol.NoteSet{}, fmt.Errorf("unknown category %q", cat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := model.Note{ID: uuid.NewString(), Title: title, Desc: desc, Cat: cat}
	s.notes[n.ID] = n
	return protocol.NoteSet{NoteID: n.ID, Note: n}, nil
}

// EditNote replaces a note's fields.
func (s *State) EditNote(id, title, desc string, cat model.Category) (protocol.NoteSet, error) {
	if !model.IsValidCategory(cat) {
		return protocol.NoteSet{}, fmt.Errorf("unknown category %q", cat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return protocol.NoteSet{}, fmt.Errorf("unknown note %s", id)
	}
	n := model.Note{ID: id, Title: title, Desc: desc, Cat: cat}
	s.notes[id] = n
	return protocol.NoteSet{NoteID: id, Note: n}, nil
}

// DeleteNote removes a note; absent ids are tolerated.
func (s *State) DeleteNote(id string) (protocol.NoteDeleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return protocol.NoteDeleted{NoteID: id}, nil
}

// AddLandmark pins a named point on the map.
func (s *State) AddLandmark(name string, x, y float64) (protocol.LandmarkSet, error) {
	l := model.Landmark{ID: uuid.NewString(), Name: name, X: x, Y: y}
	if !model.IsValidLandmark(l) {
		return protocol.LandmarkSet{}, fmt.Errorf("coordinates (%v, %v) outside the map", x, y)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.landmarks[l.ID] = l
	return protocol.LandmarkSet{LandmarkID: l.ID, Landmark: l}, nil
}

// DeleteLandmark removes a landmark; absent ids are tolerated.
func (s *State) DeleteLandmark(id string) (protocol.LandmarkDeleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.landmarks, id)
	return protocol.LandmarkDeleted{LandmarkID: id}, nil
}
