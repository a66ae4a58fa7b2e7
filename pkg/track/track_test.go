package track_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

func ev[V any](start, end float64, v V) track.TimedEvent[V] {
	return track.TimedEvent[V]{Start: start, End: end, Value: v}
}

func TestNewSequence_Valid(t *testing.T) {
	t.Parallel()

	seq, err := track.NewSequence("greeting",
		track.NewBoolTrack("eyes_open", true, ev(0, 1, false)),
		track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 1, track.MouthOpen), ev(1, 2, track.MouthRounded)),
		track.NewTransformTrack("head", ev(0, 3, track.Transform{TranslateX: 10, ScaleX: 1, ScaleY: 1})),
		track.NewSoundTrack("sfx",
			ev(0, 2.5, track.SoundCue{SourceID: "a", Volume: 1}),
			ev(0.5, 1, track.SoundCue{SourceID: "b", Volume: 0.5}),
		),
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if got := seq.Duration(); got != 3 {
		t.Errorf("Duration = %g, want 3", got)
	}
	if got := strings.Join(seq.Attributes(), ","); got != "eyes_open,mouth,head,sfx" {
		t.Errorf("Attributes = %q", got)
	}
	if _, ok := seq.Track("mouth"); !ok {
		t.Error("Track(mouth) not found")
	}
	if _, ok := seq.Track("tail"); ok {
		t.Error("Track(tail) unexpectedly found")
	}
}

func TestNewSequence_Empty(t *testing.T) {
	t.Parallel()

	seq, err := track.NewSequence("empty")
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	if seq.Duration() != 0 {
		t.Errorf("Duration = %g, want 0", seq.Duration())
	}
}

func TestNewSequence_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		track track.Track
		want  error
	}{
		{
			name:  "zero duration",
			track: track.NewBoolTrack("eyes_open", true, ev(1, 1, false)),
			want:  track.ErrInvalidSpan,
		},
		{
			name:  "inverted span",
			track: track.NewMouthTrack("mouth", track.MouthClosed, ev(2, 1, track.MouthOpen)),
			want:  track.ErrInvalidSpan,
		},
		{
			name:  "non-finite time",
			track: track.NewBoolTrack("eyes_open", true, ev(0, math.Inf(1), false)),
			want:  track.ErrInvalidSpan,
		},
		{
			name: "overlap",
			track: track.NewMouthTrack("mouth", track.MouthClosed,
				ev(0, 1.5, track.MouthOpen), ev(1, 2, track.MouthRounded)),
			want: track.ErrOverlap,
		},
		{
			name: "unsorted",
			track: track.NewBoolTrack("eyes_open", true,
				ev(2, 3, false), ev(0, 1, false)),
			want: track.ErrUnsorted,
		},
		{
			name:  "zero duration sound",
			track: track.NewSoundTrack("sfx", ev(1, 1, track.SoundCue{SourceID: "a", Volume: 1})),
			want:  track.ErrInvalidSpan,
		},
		{
			name:  "negative volume",
			track: track.NewSoundTrack("sfx", ev(0, 1, track.SoundCue{SourceID: "a", Volume: -1})),
			want:  track.ErrInvalidValue,
		},
		{
			name:  "unknown mouth shape",
			track: track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 1, track.MouthShape(7))),
			want:  track.ErrInvalidValue,
		},
		{
			name:  "non-finite transform",
			track: track.NewTransformTrack("head", ev(0, 1, track.Transform{TranslateX: math.NaN()})),
			want:  track.ErrInvalidValue,
		},
		{
			name:  "empty attribute",
			track: track.NewBoolTrack("", true),
			want:  track.ErrEmptyAttribute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := track.NewSequence("bad", tt.track)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewSequence_SoundOverlapAllowed(t *testing.T) {
	t.Parallel()

	_, err := track.NewSequence("s", track.NewSoundTrack("sfx",
		ev(0, 2, track.SoundCue{SourceID: "a", Volume: 1}),
		ev(1, 3, track.SoundCue{SourceID: "b", Volume: 1}),
	))
	if err != nil {
		t.Fatalf("overlapping sound cues should be valid: %v", err)
	}
}

func TestNewSequence_DuplicateAttribute(t *testing.T) {
	t.Parallel()

	_, err := track.NewSequence("dup",
		track.NewBoolTrack("eyes_open", true),
		track.NewBoolTrack("eyes_open", false),
	)
	if !errors.Is(err, track.ErrDuplicateAttribute) {
		t.Fatalf("error = %v, want ErrDuplicateAttribute", err)
	}
}

func TestNewSequence_JoinsAllFailures(t *testing.T) {
	t.Parallel()

	_, err := track.NewSequence("bad",
		track.NewBoolTrack("eyes_open", true, ev(1, 1, false)),
		track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 2, track.MouthOpen), ev(1, 3, track.MouthOpen)),
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, track.ErrInvalidSpan) || !errors.Is(err, track.ErrOverlap) {
		t.Errorf("error should report both failures, got: %v", err)
	}
	if !strings.Contains(err.Error(), `"eyes_open"`) || !strings.Contains(err.Error(), `"mouth"`) {
		t.Errorf("error should name both tracks, got: %v", err)
	}
}

func TestSequence_WithTrack(t *testing.T) {
	t.Parallel()

	seq, err := track.NewSequence("s",
		track.NewBoolTrack("eyes_open", true),
		track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 1, track.MouthOpen)),
	)
	if err != nil {
		t.Fatal(err)
	}

	replaced, err := seq.WithTrack(track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 4, track.MouthRounded)))
	if err != nil {
		t.Fatalf("WithTrack: %v", err)
	}
	if replaced.Duration() != 4 {
		t.Errorf("Duration after replace = %g, want 4", replaced.Duration())
	}
	if len(replaced.Tracks()) != 2 {
		t.Errorf("len(Tracks) = %d, want 2", len(replaced.Tracks()))
	}
	if seq.Duration() != 1 {
		t.Errorf("original sequence modified: Duration = %g", seq.Duration())
	}

	added, err := seq.WithTrack(track.NewTransformTrack("head"))
	if err != nil {
		t.Fatalf("WithTrack: %v", err)
	}
	if len(added.Tracks()) != 3 {
		t.Errorf("len(Tracks) = %d, want 3", len(added.Tracks()))
	}

	if _, err := seq.WithTrack(track.NewBoolTrack("eyes_open", true, ev(1, 0, false))); err == nil {
		t.Error("WithTrack should validate the new track")
	}
}

func TestTrack_EventsIsCopy(t *testing.T) {
	t.Parallel()

	mt := track.NewMouthTrack("mouth", track.MouthClosed, ev(0, 1, track.MouthOpen))
	evs := mt.Events()
	evs[0].Value = track.MouthRounded
	if mt.Event(0).Value != track.MouthOpen {
		t.Error("mutating Events() result changed the track")
	}
}

func TestMouthShape_Text(t *testing.T) {
	t.Parallel()

	for _, m := range []track.MouthShape{track.MouthClosed, track.MouthOpen, track.MouthRounded} {
		b, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", m, err)
		}
		var got track.MouthShape
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != m {
			t.Errorf("round trip %v -> %q -> %v", m, b, got)
		}
	}
	if _, err := track.ParseMouthShape("pursed"); err == nil {
		t.Error("ParseMouthShape(pursed) should fail")
	}
	if got, _ := track.ParseMouthShape("ROUNDED"); got != track.MouthRounded {
		t.Errorf("ParseMouthShape(ROUNDED) = %v", got)
	}
}

func TestTransform_Lerp(t *testing.T) {
	t.Parallel()

	a := track.IdentityTransform
	b := track.Transform{TranslateX: 10, TranslateY: -4, ScaleX: 2, ScaleY: 3}
	got := a.Lerp(b, 0.5)
	want := track.Transform{TranslateX: 5, TranslateY: -2, ScaleX: 1.5, ScaleY: 2}
	if got != want {
		t.Errorf("Lerp = %+v, want %+v", got, want)
	}
}

const sequenceYAML = `
name: greeting
tracks:
  - attribute: eyes_open
    kind: bool
    default: true
    events: [{start: 0.0, end: 0.2, value: false}]
  - attribute: mouth
    kind: mouth
    events:
      - {start: 0.1, end: 0.3, value: open}
      - {start: 0.3, end: 0.5, value: rounded}
  - attribute: head
    kind: transform
    events: [{start: 0, end: 1, value: {translate_x: 10}}]
  - attribute: sfx
    kind: sound
    events: [{start: 0, end: 0.5, value: {source_id: ding, volume: 0.8}}]
`

func TestLoadSequenceFromReader(t *testing.T) {
	t.Parallel()

	seq, err := track.LoadSequenceFromReader(strings.NewReader(sequenceYAML))
	if err != nil {
		t.Fatalf("LoadSequenceFromReader: %v", err)
	}
	if seq.Name() != "greeting" {
		t.Errorf("Name = %q", seq.Name())
	}

	eyes, _ := seq.Track("eyes_open")
	if bt := eyes.(*track.BoolTrack); !bt.Default() {
		t.Error("eyes_open default should be true")
	}

	mouth, _ := seq.Track("mouth")
	mt := mouth.(*track.MouthTrack)
	if mt.Default() != track.MouthClosed {
		t.Errorf("mouth default = %v, want closed", mt.Default())
	}
	if mt.Len() != 2 || mt.Event(1).Value != track.MouthRounded {
		t.Errorf("mouth events = %+v", mt.Events())
	}

	head, _ := seq.Track("head")
	got := head.(*track.TransformTrack).Event(0).Value
	want := track.Transform{TranslateX: 10, ScaleX: 1, ScaleY: 1}
	if got != want {
		t.Errorf("head target = %+v, want %+v (omitted scale defaults to 1)", got, want)
	}

	sfx, _ := seq.Track("sfx")
	cue := sfx.(*track.SoundTrack).Event(0).Value
	if cue.SourceID != "ding" || cue.Volume != 0.8 {
		t.Errorf("sfx cue = %+v", cue)
	}
}

func TestLoadSequenceFromReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ncolour: red\n",
			want: "colour",
		},
		{
			name: "unknown kind",
			yaml: "name: x\ntracks:\n  - attribute: a\n    kind: colour\n",
			want: "kind",
		},
		{
			name: "bad mouth value",
			yaml: "name: x\ntracks:\n  - attribute: m\n    kind: mouth\n    events: [{start: 0, end: 1, value: pursed}]\n",
			want: "pursed",
		},
		{
			name: "sound default",
			yaml: "name: x\ntracks:\n  - attribute: s\n    kind: sound\n    default: 1\n",
			want: "no default",
		},
		{
			name: "misspelled event field",
			yaml: "name: x\ntracks:\n  - attribute: m\n    kind: mouth\n    events: [{start: 0, end: 1, valeu: open}]\n",
			want: "valeu",
		},
		{
			name: "misspelled transform field",
			yaml: "name: x\ntracks:\n  - attribute: h\n    kind: transform\n    events: [{start: 0, end: 1, value: {translat_x: 3}}]\n",
			want: "translat_x",
		},
		{
			name: "misspelled default field",
			yaml: "name: x\ntracks:\n  - attribute: h\n    kind: transform\n    default: {scale: 2}\n",
			want: "scale",
		},
		{
			name: "misspelled sound cue field",
			yaml: "name: x\ntracks:\n  - attribute: s\n    kind: sound\n    events: [{start: 0, end: 1, value: {sorce_id: ding}}]\n",
			want: "sorce_id",
		},
		{
			name: "overlap",
			yaml: "name: x\ntracks:\n  - attribute: m\n    kind: mouth\n    events: [{start: 0, end: 1, value: open}, {start: 0.5, end: 2, value: open}]\n",
			want: "overlap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := track.LoadSequenceFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestWriteSequence_RoundTrip(t *testing.T) {
	t.Parallel()

	seq, err := track.LoadSequenceFromReader(strings.NewReader(sequenceYAML))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := track.WriteSequence(&buf, seq); err != nil {
		t.Fatalf("WriteSequence: %v", err)
	}
	again, err := track.LoadSequenceFromReader(&buf)
	if err != nil {
		t.Fatalf("reload: %v\n%s", err, buf.String())
	}
	if strings.Join(again.Attributes(), ",") != strings.Join(seq.Attributes(), ",") {
		t.Errorf("attributes differ after round trip: %v vs %v", again.Attributes(), seq.Attributes())
	}
	if again.Duration() != seq.Duration() {
		t.Errorf("duration differs after round trip: %g vs %g", again.Duration(), seq.Duration())
	}
	m1, _ := seq.Track("mouth")
	m2, _ := again.Track("mouth")
	e1, e2 := m1.(*track.MouthTrack).Events(), m2.(*track.MouthTrack).Events()
	if len(e1) != len(e2) {
		t.Fatalf("mouth events differ: %v vs %v", e1, e2)
	}
	for i := range e1 {
		if e1[i] != e2[i] {
			t.Errorf("mouth event %d: %+v vs %+v", i, e1[i], e2[i])
		}
	}
}

func TestTransformTrack_DefaultSurvivesFile(t *testing.T) {
	t.Parallel()

	def := track.Transform{TranslateY: -4, ScaleX: 2, ScaleY: 2}
	seq, err := track.NewSequence("x",
		track.NewTransformTrackWithDefault("head", def, ev(1, 2, track.IdentityTransform)),
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	var buf bytes.Buffer
	if err := track.WriteSequence(&buf, seq); err != nil {
		t.Fatalf("WriteSequence: %v", err)
	}
	again, err := track.LoadSequenceFromReader(&buf)
	if err != nil {
		t.Fatalf("reload: %v\n%s", err, buf.String())
	}
	head, _ := again.Track("head")
	if got := head.(*track.TransformTrack).Default(); got != def {
		t.Errorf("default = %+v, want %+v", got, def)
	}
	if got := track.NewTransformTrack("head").Default(); got != track.IdentityTransform {
		t.Errorf("NewTransformTrack default = %+v, want identity", got)
	}
}
