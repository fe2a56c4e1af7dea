package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakwater-labs/clocktower/go/internal/model"
)

func TestEncodeIntent_WireShapes(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   string
	}{
		{"full sync is a bare string", RequestFullSync{}, `"FullSync"`},
		{"add player", AddPlayer{Name: "Alice"}, `{"AddPlayer":"Alice"}`},
		{"rename player", RenamePlayer{PlayerID: "p1", Name: "Bea"}, `{"RenamePlayer":["p1","Bea"]}`},
		{"remove player", RemovePlayer{PlayerID: "p1"}, `{"RemovePlayer":"p1"}`},
		{"add clock", AddClock{PlayerID: "p2", Task: "Heat", Slices: 6}, `{"AddClock":["p2","Heat",6]}`},
		{"increment", IncrementClock{PlayerID: "p2", ClockID: "c1"}, `{"IncrementClock":["p2","c1"]}`},
		{"decrement", DecrementClock{PlayerID: "p2", ClockID: "c1"}, `{"DecrementClock":["p2","c1"]}`},
		{"delete clock", DeleteClock{PlayerID: "p2", ClockID: "c1"}, `{"DeleteClock":["p2","c1"]}`},
		{"add note", AddNote{Title: "note", Desc: "...", Cat: model.CategoryMisc}, `{"AddNote":["note","...","Misc"]}`},
		{"delete note", DeleteNote{NoteID: "n1"}, `{"DeleteNote":"n1"}`},
		{"delete landmark", DeleteLandmark{LandmarkID: "l1"}, `{"DeleteLandmark":"l1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeIntent(tt.intent)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestEncodeIntent_RejectsInvalid(t *testing.T) {
	var encErr *EncodeError

	_, err := EncodeIntent(AddClock{PlayerID: "p1", Task: "x", Slices: 0})
	require.ErrorAs(t, err, &encErr)

	_, err = EncodeIntent(AddClock{PlayerID: "p1", Task: "x", Slices: 51})
	require.ErrorAs(t, err, &encErr)

	_, err = EncodeIntent(AddNote{Title: "t", Desc: "d", Cat: "Gremlins"})
	require.ErrorAs(t, err, &encErr)

	_, err = EncodeIntent(EditNote{NoteID: "n1", Title: "t", Desc: "d", Cat: ""})
	require.ErrorAs(t, err, &encErr)

	_, err = EncodeIntent(AddLandmark{Name: "docks", X: 1.5, Y: 0.2})
	require.ErrorAs(t, err, &encErr)
}

func TestIntentRoundTrip(t *testing.T) {
	intents := []Intent{
		RequestFullSync{},
		AddPlayer{Name: "Alice"},
		RenamePlayer{PlayerID: "p1", Name: "Bea"},
		RemovePlayer{PlayerID: "p1"},
		AddClock{PlayerID: "p2", Task: "Heat", Slices: 6},
		IncrementClock{PlayerID: "p2", ClockID: "c1"},
		DecrementClock{PlayerID: "p2", ClockID: "c1"},
		DeleteClock{PlayerID: "p2", ClockID: "c1"},
		AddNote{Title: "contact", Desc: "fence in silkshore", Cat: model.CategoryPerson},
		EditNote{NoteID: "n1", Title: "contact", Desc: "moved on", Cat: model.CategoryEvent},
		DeleteNote{NoteID: "n1"},
		AddLandmark{Name: "hideout", X: 0.4, Y: 0.7},
		DeleteLandmark{LandmarkID: "l1"},
	}

	for _, in := range intents {
		data, err := EncodeIntent(in)
		require.NoError(t, err)
		got, err := DecodeIntent(data)
		require.NoError(t, err, "decoding %s", data)
		assert.Equal(t, in, got)
	}
}

func TestDecodeIntent_Errors(t *testing.T) {
	_, err := DecodeIntent([]byte(`"NotASyncRequest"`))
	assert.ErrorIs(t, err, ErrUnknownIntent)

	_, err = DecodeIntent([]byte(`{"LaunchRockets":["p1"]}`))
	assert.ErrorIs(t, err, ErrUnknownIntent)

	_, err = DecodeIntent([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeIntent([]byte(`{"AddClock":["p1","task"]}`))
	assert.Error(t, err, "short tuple must fail")

	_, err = DecodeIntent([]byte(`{"AddClock":["p1","task",6],"Extra":1}`))
	assert.Error(t, err, "two tags must fail")
}

func TestDecodeUpdate_Snapshot(t *testing.T) {
	raw := `{
		"type": "FullUpdate",
		"players": {
			"p1": {"name": "world", "clocks": {}},
			"p2": {"name": "Alice", "clocks": {"c1": {"id": "c1", "task": "Heat", "slices": 6, "progress": 2}}}
		},
		"notes": {"n1": {"title": "fence", "desc": "silkshore", "cat": "Person"}}
	}`

	ev, err := DecodeUpdate([]byte(raw))
	require.NoError(t, err)

	snap, ok := ev.(FullSnapshot)
	require.True(t, ok)
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, "Heat", snap.Players["p2"].Clocks["c1"].Task)
	assert.Equal(t, model.CategoryPerson, snap.Notes["n1"].Cat)
	assert.NotNil(t, snap.Landmarks, "absent collections decode as empty, not nil")
}

func TestDecodeUpdate_TypeSynonyms(t *testing.T) {
	clockJSON := `"clock": {"id": "c1", "task": "Heat", "slices": 6, "progress": 2}`

	for _, typ := range []string{"Clock", "ClockUpdate"} {
		ev, err := DecodeUpdate([]byte(`{"type":"` + typ + `","player_id":"p2","clock_id":"c1",` + clockJSON + `}`))
		require.NoError(t, err)
		set, ok := ev.(ClockSet)
		require.True(t, ok, "type %q", typ)
		assert.Equal(t, "p2", set.PlayerID)
		assert.Equal(t, 2, set.Clock.Progress)
	}

	for _, typ := range []string{"RemovePlayer", "DeletePlayer"} {
		ev, err := DecodeUpdate([]byte(`{"type":"` + typ + `","player_id":"p9"}`))
		require.NoError(t, err)
		assert.Equal(t, PlayerRemoved{PlayerID: "p9"}, ev)
	}

	for _, typ := range []string{"DeleteClock", "DeleteClockUpdate"} {
		ev, err := DecodeUpdate([]byte(`{"type":"` + typ + `","player_id":"p2","clock_id":"c1"}`))
		require.NoError(t, err)
		assert.Equal(t, ClockDeleted{PlayerID: "p2", ClockID: "c1"}, ev)
	}
}

func TestDecodeUpdate_UnknownTypeIsNotAnError(t *testing.T) {
	ev, err := DecodeUpdate([]byte(`{"type":"HolographicUpdate","payload":42}`))
	require.NoError(t, err)
	assert.Equal(t, Unknown{Type: "HolographicUpdate"}, ev)
}

func TestDecodeUpdate_Failures(t *testing.T) {
	_, err := DecodeUpdate([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeUpdate([]byte(`{"type":"ClockUpdate","player_id":"p1","clock_id":"c1"}`))
	assert.Error(t, err, "missing clock payload")

	_, err = DecodeUpdate([]byte(`{"type":"Note","note_id":"n1","note":{"title":"x","desc":"y","cat":"Gremlins"}}`))
	assert.Error(t, err, "unknown category is a protocol error")
}

func TestUpdateRoundTrip(t *testing.T) {
	events := []Event{
		FullSnapshot{
			Players: map[string]model.Player{
				"p1": {Name: "world", Clocks: map[string]model.Clock{}},
			},
			Notes:     map[string]model.Note{},
			Landmarks: map[string]model.Landmark{},
		},
		PlayerSet{PlayerID: "p2", Player: model.Player{Name: "Alice", Clocks: map[string]model.Clock{}}},
		PlayerRenamed{PlayerID: "p2", Name: "Bea"},
		PlayerRemoved{PlayerID: "p2"},
		ClockSet{PlayerID: "p2", ClockID: "c1", Clock: model.Clock{ID: "c1", Task: "Heat", Slices: 6, Progress: 2}},
		ClockDeleted{PlayerID: "p2", ClockID: "c1"},
		NoteSet{NoteID: "n1", Note: model.Note{Title: "fence", Desc: "gone", Cat: model.CategoryPerson}},
		NoteDeleted{NoteID: "n1"},
		LandmarkSet{LandmarkID: "l1", Landmark: model.Landmark{Name: "hideout", X: 0.4, Y: 0.7}},
		LandmarkDeleted{LandmarkID: "l1"},
		DiagnosticLog{Text: "hello"},
		ProtocolError{Text: "no such player"},
	}

	for _, want := range events {
		data, err := EncodeUpdate(want)
		require.NoError(t, err)
		got, err := DecodeUpdate(data)
		require.NoError(t, err, "decoding %s", data)
		assert.Equal(t, want, got)
	}
}

func TestEncodeUpdate_CanonicalTags(t *testing.T) {
	data, err := EncodeUpdate(ClockSet{PlayerID: "p1", ClockID: "c1", Clock: model.Clock{ID: "c1", Task: "x", Slices: 4}})
	require.NoError(t, err)

	var w map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &w))
	assert.JSONEq(t, `"ClockUpdate"`, string(w["type"]))
}
