package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/breakwater-labs/clocktower/go/internal/model"
)

// Intent is a client-originated request to mutate shared state. Intents are
// sent to the authority and never applied locally; the matching delta update
// comes back over the wire.
//
// The wire form is externally tagged: the unit intent RequestFullSync
// serializes as the bare string "FullSync", single-field intents as
// {"Tag": value} and multi-field intents as {"Tag": [fields...]}.
type Intent interface {
	tag() string
}

type RequestFullSync struct{}

type AddPlayer struct {
	Name string
}

type RenamePlayer struct {
	PlayerID string
	Name     string
}

type RemovePlayer struct {
	PlayerID string
}

type AddClock struct {
	PlayerID string
	Task     string
	Slices   int
}

type IncrementClock struct {
	PlayerID string
	ClockID  string
}

type DecrementClock struct {
	PlayerID string
	ClockID  string
}

type DeleteClock struct {
	PlayerID string
	ClockID  string
}

type AddNote struct {
	Title string
	Desc  string
	Cat   model.Category
}

type EditNote struct {
	NoteID string
	Title  string
	Desc   string
	Cat    model.Category
}

type DeleteNote struct {
	NoteID string
}

type AddLandmark struct {
	Name string
	X    float64
	Y    float64
}

type DeleteLandmark struct {
	LandmarkID string
}

func (RequestFullSync) tag() string { return "FullSync" }
func (AddPlayer) tag() string       { return "AddPlayer" }
func (RenamePlayer) tag() string    { return "RenamePlayer" }
func (RemovePlayer) tag() string    { return "RemovePlayer" }
func (AddClock) tag() string        { return "AddClock" }
func (IncrementClock) tag() string  { return "IncrementClock" }
func (DecrementClock) tag() string  { return "DecrementClock" }
func (DeleteClock) tag() string     { return "DeleteClock" }
func (AddNote) tag() string         { return "AddNote" }
func (EditNote) tag() string        { return "EditNote" }
func (DeleteNote) tag() string      { return "DeleteNote" }
func (AddLandmark) tag() string     { return "AddLandmark" }
func (DeleteLandmark) tag() string  { return "DeleteLandmark" }

// EncodeIntent serializes an intent for transmission. Structural invariants
// (slice bounds, note categories, landmark coordinates) are checked here and
// fail with an *EncodeError; business rules such as blank names are the
// producing layer's problem.
func EncodeIntent(in Intent) ([]byte, error) {
	switch v := in.(type) {
	case RequestFullSync:
		return json.Marshal(v.tag())
	case AddPlayer:
		return tagged(v.tag(), v.Name)
	case RenamePlayer:
		return tagged(v.tag(), []any{v.PlayerID, v.Name})
	case RemovePlayer:
		return tagged(v.tag(), v.PlayerID)
	case AddClock:
		if v.Slices < model.MinSlices || v.Slices > model.MaxSlices {
			return nil, &EncodeError{
				Intent: v.tag(),
				Reason: fmt.Sprintf("slices %d outside [%d,%d]", v.Slices, model.MinSlices, model.MaxSlices),
			}
		}
		return tagged(v.tag(), []any{v.PlayerID, v.Task, v.Slices})
	case IncrementClock:
		return tagged(v.tag(), []any{v.PlayerID, v.ClockID})
	case DecrementClock:
		return tagged(v.tag(), []any{v.PlayerID, v.ClockID})
	case DeleteClock:
		return tagged(v.tag(), []any{v.PlayerID, v.ClockID})
	case AddNote:
		if !model.IsValidCategory(v.Cat) {
			return nil, &EncodeError{Intent: v.tag(), Reason: fmt.Sprintf("unknown category %q", v.Cat)}
		}
		return tagged(v.tag(), []any{v.Title, v.Desc, v.Cat})
	case EditNote:
		if !model.IsValidCategory(v.Cat) {
			return nil, &EncodeError{Intent: v.tag(), Reason: fmt.Sprintf("unknown category %q", v.Cat)}
		}
		return tagged(v.tag(), []any{v.NoteID, v.Title, v.Desc, v.Cat})
	case DeleteNote:
		return tagged(v.tag(), v.NoteID)
	case AddLandmark:
		if !model.IsValidLandmark(model.Landmark{X: v.X, Y: v.Y}) {
			return nil, &EncodeError{Intent: v.tag(), Reason: "coordinates outside [0,1]"}
		}
		return tagged(v.tag(), []any{v.Name, v.X, v.Y})
	case DeleteLandmark:
		return tagged(v.tag(), v.LandmarkID)
	default:
		return nil, &EncodeError{Intent: fmt.Sprintf("%T", in), Reason: "unsupported intent type"}
	}
}

func tagged(tag string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: payload})
}

// DecodeIntent parses an intent off the wire. Unrecognized tags fail with
// ErrUnknownIntent so the authority can log and drop the message.
func DecodeIntent(data []byte) (Intent, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		if unit == "FullSync" {
			return RequestFullSync{}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, unit)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed intent: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("malformed intent: expected a single tag, got %d", len(envelope))
	}

	var tag string
	var payload json.RawMessage
	for k, v := range envelope {
		tag, payload = k, v
	}

	switch tag {
	case "AddPlayer":
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return nil, payloadErr(tag, err)
		}
		return AddPlayer{Name: name}, nil
	case "RenamePlayer":
		var v RenamePlayer
		if err := unmarshalTuple(payload, &v.PlayerID, &v.Name); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "RemovePlayer":
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			return nil, payloadErr(tag, err)
		}
		return RemovePlayer{PlayerID: id}, nil
	case "AddClock":
		var v AddClock
		if err := unmarshalTuple(payload, &v.PlayerID, &v.Task, &v.Slices); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "IncrementClock":
		var v IncrementClock
		if err := unmarshalTuple(payload, &v.PlayerID, &v.ClockID); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "DecrementClock":
		var v DecrementClock
		if err := unmarshalTuple(payload, &v.PlayerID, &v.ClockID); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "DeleteClock":
		var v DeleteClock
		if err := unmarshalTuple(payload, &v.PlayerID, &v.ClockID); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "AddNote":
		var v AddNote
		if err := unmarshalTuple(payload, &v.Title, &v.Desc, &v.Cat); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "EditNote":
		var v EditNote
		if err := unmarshalTuple(payload, &v.NoteID, &v.Title, &v.Desc, &v.Cat); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "DeleteNote":
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			return nil, payloadErr(tag, err)
		}
		return DeleteNote{NoteID: id}, nil
	case "AddLandmark":
		var v AddLandmark
		if err := unmarshalTuple(payload, &v.Name, &v.X, &v.Y); err != nil {
			return nil, payloadErr(tag, err)
		}
		return v, nil
	case "DeleteLandmark":
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			return nil, payloadErr(tag, err)
		}
		return DeleteLandmark{LandmarkID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, tag)
	}
}

// unmarshalTuple decodes a JSON array into the given field pointers,
// requiring an exact length match.
func unmarshalTuple(data json.RawMessage, fields ...any) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	if len(elems) != len(fields) {
		return fmt.Errorf("expected %d tuple elements, got %d", len(fields), len(elems))
	}
	for i, e := range elems {
		if err := json.Unmarshal(e, fields[i]); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}

func payloadErr(tag string, err error) error {
	return fmt.Errorf("malformed %s payload: %w", tag, err)
}
