package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/breakwater-labs/clocktower/go/internal/model"
)

// Event is a decoded authority update, ready for the store to apply.
type Event interface {
	isEvent()
}

// FullSnapshot replaces the entire session state. It is both the initial
// load and the recovery mechanism: applying one is always safe.
type FullSnapshot struct {
	Players   map[string]model.Player
	Notes     map[string]model.Note
	Landmarks map[string]model.Landmark
}

type PlayerSet struct {
	PlayerID string
	Player   model.Player
}

type PlayerRenamed struct {
	PlayerID string
	Name     string
}

type PlayerRemoved struct {
	PlayerID string
}

type ClockSet struct {
	PlayerID string
	ClockID  string
	Clock    model.Clock
}

type ClockDeleted struct {
	PlayerID string
	ClockID  string
}

type NoteSet struct {
	NoteID string
	Note   model.Note
}

type NoteDeleted struct {
	NoteID string
}

type LandmarkSet struct {
	LandmarkID string
	Landmark   model.Landmark
}

type LandmarkDeleted struct {
	LandmarkID string
}

// DiagnosticLog carries informational text from the authority.
type DiagnosticLog struct {
	Text string
}

// ProtocolError carries an error the authority reported for one of our
// intents. It never affects store state.
type ProtocolError struct {
	Text string
}

// Unknown is returned for update types this client does not recognize.
// The session channel logs and discards it, which keeps the type
// discriminator an open enumeration.
type Unknown struct {
	Type string
}

func (FullSnapshot) isEvent()    {}
func (PlayerSet) isEvent()       {}
func (PlayerRenamed) isEvent()   {}
func (PlayerRemoved) isEvent()   {}
func (ClockSet) isEvent()        {}
func (ClockDeleted) isEvent()    {}
func (NoteSet) isEvent()         {}
func (NoteDeleted) isEvent()     {}
func (LandmarkSet) isEvent()     {}
func (LandmarkDeleted) isEvent() {}
func (DiagnosticLog) isEvent()   {}
func (ProtocolError) isEvent()   {}
func (Unknown) isEvent()         {}

// wireUpdate is the superset of every inbound payload. The type field
// discriminates; unused fields stay empty.
type wireUpdate struct {
	Type string `json:"type"`

	Players   map[string]model.Player   `json:"players,omitempty"`
	Notes     map[string]model.Note     `json:"notes,omitempty"`
	Landmarks map[string]model.Landmark `json:"landmarks,omitempty"`

	PlayerID   string        `json:"player_id,omitempty"`
	Player     *model.Player `json:"player,omitempty"`
	PlayerName string        `json:"player_name,omitempty"`

	ClockID string       `json:"clock_id,omitempty"`
	Clock   *model.Clock `json:"clock,omitempty"`

	NoteID string      `json:"note_id,omitempty"`
	Note   *model.Note `json:"note,omitempty"`

	LandmarkID string          `json:"landmark_id,omitempty"`
	Landmark   *model.Landmark `json:"landmark,omitempty"`

	Text string `json:"text,omitempty"`
}

// DecodeUpdate parses an authority message. A missing or malformed payload
// for a known type is an error (the channel logs and drops the message); an
// unrecognized type decodes to Unknown with a nil error.
func DecodeUpdate(data []byte) (Event, error) {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("malformed update: %w", err)
	}

	switch w.Type {
	case "Full", "FullUpdate":
		snap := FullSnapshot{Players: w.Players, Notes: w.Notes, Landmarks: w.Landmarks}
		if snap.Players == nil {
			snap.Players = map[string]model.Player{}
		}
		if snap.Notes == nil {
			snap.Notes = map[string]model.Note{}
		}
		if snap.Landmarks == nil {
			snap.Landmarks = map[string]model.Landmark{}
		}
		return snap, nil

	case "Player", "AddPlayerUpdate":
		if w.Player == nil {
			return nil, missingField(w.Type, "player")
		}
		return PlayerSet{PlayerID: w.PlayerID, Player: *w.Player}, nil

	case "PlayerName":
		return PlayerRenamed{PlayerID: w.PlayerID, Name: w.PlayerName}, nil

	case "RemovePlayer", "DeletePlayer":
		return PlayerRemoved{PlayerID: w.PlayerID}, nil

	case "Clock", "ClockUpdate":
		if w.Clock == nil {
			return nil, missingField(w.Type, "clock")
		}
		return ClockSet{PlayerID: w.PlayerID, ClockID: w.ClockID, Clock: *w.Clock}, nil

	case "DeleteClock", "DeleteClockUpdate":
		return ClockDeleted{PlayerID: w.PlayerID, ClockID: w.ClockID}, nil

	case "Note":
		if w.Note == nil {
			return nil, missingField(w.Type, "note")
		}
		if !model.IsValidNote(*w.Note) {
			return nil, fmt.Errorf("note %s: unknown category %q", w.NoteID, w.Note.Cat)
		}
		return NoteSet{NoteID: w.NoteID, Note: *w.Note}, nil

	case "DeleteNote":
		return NoteDeleted{NoteID: w.NoteID}, nil

	case "Landmark":
		if w.Landmark == nil {
			return nil, missingField(w.Type, "landmark")
		}
		return LandmarkSet{LandmarkID: w.LandmarkID, Landmark: *w.Landmark}, nil

	case "DeleteLandmark":
		return LandmarkDeleted{LandmarkID: w.LandmarkID}, nil

	case "Log":
		return DiagnosticLog{Text: w.Text}, nil

	case "Error":
		return ProtocolError{Text: w.Text}, nil

	default:
		return Unknown{Type: w.Type}, nil
	}
}

// EncodeUpdate serializes an event in the canonical wire form the authority
// emits. Unknown events are not encodable.
func EncodeUpdate(ev Event) ([]byte, error) {
	var w wireUpdate

	switch v := ev.(type) {
	case FullSnapshot:
		w.Type = "FullUpdate"
		w.Players = v.Players
		w.Notes = v.Notes
		w.Landmarks = v.Landmarks
	case PlayerSet:
		w.Type = "AddPlayerUpdate"
		w.PlayerID = v.PlayerID
		p := v.Player
		w.Player = &p
	case PlayerRenamed:
		w.Type = "PlayerName"
		w.PlayerID = v.PlayerID
		w.PlayerName = v.Name
	case PlayerRemoved:
		w.Type = "RemovePlayer"
		w.PlayerID = v.PlayerID
	case ClockSet:
		w.Type = "ClockUpdate"
		w.PlayerID = v.PlayerID
		w.ClockID = v.ClockID
		c := v.Clock
		w.Clock = &c
	case ClockDeleted:
		w.Type = "DeleteClockUpdate"
		w.PlayerID = v.PlayerID
		w.ClockID = v.ClockID
	case NoteSet:
		w.Type = "Note"
		w.NoteID = v.NoteID
		n := v.Note
		w.Note = &n
	case NoteDeleted:
		w.Type = "DeleteNote"
		w.NoteID = v.NoteID
	case LandmarkSet:
		w.Type = "Landmark"
		w.LandmarkID = v.LandmarkID
		l := v.Landmark
		w.Landmark = &l
	case LandmarkDeleted:
		w.Type = "DeleteLandmark"
		w.LandmarkID = v.LandmarkID
	case DiagnosticLog:
		w.Type = "Log"
		w.Text = v.Text
	case ProtocolError:
		w.Type = "Error"
		w.Text = v.Text
	default:
		return nil, fmt.Errorf("unencodable event type %T", ev)
	}

	return json.Marshal(w)
}

func missingField(typ, field string) error {
	return fmt.Errorf("update %s: missing %s payload", typ, field)
}
