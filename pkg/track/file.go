package track

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SequenceFile is the on-disk YAML form of a [Sequence].
//
// Example:
//
//	name: greeting
//	tracks:
//	  - attribute: eyes_open
//	    kind: bool
//	    default: true
//	    events: [{start: 0.0, end: 0.2, value: false}]
//	  - attribute: mouth
//	    kind: mouth
//	    events: [{start: 0.1, end: 0.3, value: open}]
//	  - attribute: head
//	    kind: transform
//	    events: [{start: 0, end: 1, value: {translate_x: 10}}]
//	  - attribute: sfx
//	    kind: sound
//	    events: [{start: 0, end: 0.5, value: {source_id: ding, volume: 0.8}}]
type SequenceFile struct {
	Name   string      `yaml:"name"`
	Tracks []TrackFile `yaml:"tracks"`
}

// TrackFile is one track entry of a [SequenceFile]. Default and Events are
// decoded according to Kind. An omitted default means false for bool tracks,
// closed for mouth tracks and the identity for transform tracks.
type TrackFile struct {
	Attribute string    `yaml:"attribute"`
	Kind      Kind      `yaml:"kind"`
	Default   yaml.Node `yaml:"default,omitempty"`
	Events    yaml.Node `yaml:"events"`
}

// UnmarshalYAML decodes a transform, defaulting omitted scale fields to 1.
func (t *Transform) UnmarshalYAML(value *yaml.Node) error {
	type plain Transform
	p := plain(IdentityTransform)
	if err := decodeStrict(value, &p); err != nil {
		return err
	}
	*t = Transform(p)
	return nil
}

// LoadSequenceFile reads, decodes and validates the sequence at path.
func LoadSequenceFile(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("track: open sequence file %q: %w", path, err)
	}
	defer f.Close()

	seq, err := LoadSequenceFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("track: parse sequence file %q: %w", path, err)
	}
	return seq, nil
}

// LoadSequenceFromReader decodes a sequence YAML document from r and
// validates it with [NewSequence].
func LoadSequenceFromReader(r io.Reader) (*Sequence, error) {
	var sf SequenceFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("track: decode sequence yaml: %w", err)
	}
	return sf.Build()
}

// Build converts the file form into a validated [Sequence].
func (sf *SequenceFile) Build() (*Sequence, error) {
	tracks := make([]Track, 0, len(sf.Tracks))
	for i, tf := range sf.Tracks {
		t, err := tf.build()
		if err != nil {
			return nil, fmt.Errorf("track: tracks[%d] %q: %w", i, tf.Attribute, err)
		}
		tracks = append(tracks, t)
	}
	return NewSequence(sf.Name, tracks...)
}

func (tf *TrackFile) build() (Track, error) {
	switch tf.Kind {
	case KindBool:
		var def bool
		evs, err := decodeTrackFile(tf, &def)
		if err != nil {
			return nil, err
		}
		return NewBoolTrack(tf.Attribute, def, evs...), nil
	case KindMouth:
		def := MouthClosed
		evs, err := decodeTrackFile[MouthShape](tf, &def)
		if err != nil {
			return nil, err
		}
		return NewMouthTrack(tf.Attribute, def, evs...), nil
	case KindTransform:
		def := IdentityTransform
		evs, err := decodeTrackFile(tf, &def)
		if err != nil {
			return nil, err
		}
		return NewTransformTrackWithDefault(tf.Attribute, def, evs...), nil
	case KindSound:
		evs, err := decodeTrackFile[SoundCue](tf, nil)
		if err != nil {
			return nil, err
		}
		return NewSoundTrack(tf.Attribute, evs...), nil
	}
	return nil, fmt.Errorf("kind %q is invalid; valid values: bool, mouth, transform, sound", tf.Kind)
}

func decodeTrackFile[V any](tf *TrackFile, def *V) ([]TimedEvent[V], error) {
	if tf.Default.Kind != 0 {
		if def == nil {
			return nil, fmt.Errorf("%s tracks take no default", tf.Kind)
		}
		if err := decodeStrict(&tf.Default, def); err != nil {
			return nil, fmt.Errorf("decode default: %w", err)
		}
	}
	var evs []TimedEvent[V]
	if tf.Events.Kind != 0 {
		if err := decodeStrict(&tf.Events, &evs); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	}
	return evs, nil
}

// decodeStrict decodes node into out rejecting unknown fields.
// [yaml.Node.Decode] does not inherit the outer decoder's KnownFields, so the
// node is re-encoded and decoded again with it set.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// FileFromSequence converts seq into its YAML file form.
func FileFromSequence(seq *Sequence) (*SequenceFile, error) {
	sf := &SequenceFile{Name: seq.Name()}
	for _, t := range seq.Tracks() {
		tf := TrackFile{Attribute: t.Attribute(), Kind: t.Kind()}
		var err error
		switch tt := t.(type) {
		case *BoolTrack:
			def := tt.Default()
			err = encodeTrackFile(&tf, &def, tt.Events())
		case *MouthTrack:
			def := tt.Default()
			err = encodeTrackFile(&tf, &def, tt.Events())
		case *TransformTrack:
			def := tt.Default()
			err = encodeTrackFile(&tf, &def, tt.Events())
		case *SoundTrack:
			err = encodeTrackFile[SoundCue](&tf, nil, tt.Events())
		}
		if err != nil {
			return nil, fmt.Errorf("track: encode %q: %w", t.Attribute(), err)
		}
		sf.Tracks = append(sf.Tracks, tf)
	}
	return sf, nil
}

func encodeTrackFile[V any](tf *TrackFile, def *V, evs []TimedEvent[V]) error {
	if def != nil {
		if err := tf.Default.Encode(*def); err != nil {
			return err
		}
	}
	if evs == nil {
		evs = []TimedEvent[V]{}
	}
	return tf.Events.Encode(evs)
}

// WriteSequence encodes seq as YAML to w.
func WriteSequence(w io.Writer, seq *Sequence) error {
	sf, err := FileFromSequence(seq)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sf); err != nil {
		return fmt.Errorf("track: encode sequence yaml: %w", err)
	}
	return enc.Close()
}
