package anim

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"math"

	"github.com/MrWong99/mouthpiece/pkg/track"
)

// ErrInvalidFPS is returned by [Sampler.Frames] for a non-positive or
// non-finite frame rate.
var ErrInvalidFPS = errors.New("anim: fps must be positive")

// frameCountEpsilon keeps float noise in duration*fps from adding a frame,
// e.g. 0.1s at 30 fps is 3.0000000000000004.
const frameCountEpsilon = 1e-9

// Character is the posable object a frame is rendered from. ApplyPose is
// called once per frame before rendering and is expected to mutate the
// character in place.
type Character interface {
	ApplyPose(pose track.PoseState)
}

// Renderer turns a posed character into an image.
type Renderer interface {
	Render(c Character) (image.Image, error)
}

// RendererFunc adapts a function to the [Renderer] interface.
type RendererFunc func(c Character) (image.Image, error)

// Render calls f(c).
func (f RendererFunc) Render(c Character) (image.Image, error) { return f(c) }

// Frame is one rendered sample of the sequence.
type Frame struct {
	Index int
	Time  float64
	Pose  track.PoseState

	// Image is nil when the iterator was built without a renderer.
	Image image.Image

	// Sounds holds the cues starting in [Time, Time+1/fps).
	Sounds []track.TimedEvent[track.SoundCue]
}

// FrameIterator produces the frames of a sequence one at a time. It is not
// safe for concurrent use. Use it like a [bufio.Scanner]:
//
//	it, err := sampler.Frames(24, char, renderer)
//	if err != nil { ... }
//	for it.Next() {
//		f := it.Frame()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type FrameIterator struct {
	sampler   *Sampler
	fps       float64
	count     int
	index     int
	character Character
	renderer  Renderer

	cur Frame
	err error
}

// Frames returns an iterator over ceil(Duration*fps)+1 frames at t = i/fps.
// Each call returns an independent iterator. character and renderer may be
// nil, in which case poses are not applied or images not rendered.
func (s *Sampler) Frames(fps float64, character Character, renderer Renderer) (*FrameIterator, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidFPS, fps)
	}
	return &FrameIterator{
		sampler:   s,
		fps:       fps,
		count:     FrameCount(s.Duration(), fps),
		character: character,
		renderer:  renderer,
	}, nil
}

// FrameCount returns the number of frames generated for a sequence of the
// given duration: ceil(duration*fps)+1.
func FrameCount(duration, fps float64) int {
	if fps <= 0 || duration <= 0 {
		return 1
	}
	return int(math.Ceil(duration*fps-frameCountEpsilon)) + 1
}

// Len returns the total number of frames the iterator yields.
func (it *FrameIterator) Len() int { return it.count }

// Next advances to the next frame. It returns false when all frames have been
// produced or rendering failed; check [FrameIterator.Err] afterwards.
func (it *FrameIterator) Next() bool {
	if it.err != nil || it.index >= it.count {
		return false
	}
	i := it.index
	t := float64(i) / it.fps
	// Computed like the next frame's time so adjacent windows share the boundary.
	next := float64(i+1) / it.fps
	pose := it.sampler.SamplePose(t)

	var img image.Image
	if it.character != nil {
		it.character.ApplyPose(pose)
	}
	if it.renderer != nil {
		var err error
		img, err = it.renderer.Render(it.character)
		if err != nil {
			it.err = fmt.Errorf("anim: render frame %d at %.3fs: %w", i, t, err)
			return false
		}
	}

	it.cur = Frame{
		Index:  i,
		Time:   t,
		Pose:   pose,
		Image:  img,
		Sounds: it.sampler.SoundEventsBetween(t, next, true, false),
	}
	it.index++
	return true
}

// Frame returns the frame produced by the last successful call to Next.
func (it *FrameIterator) Frame() Frame { return it.cur }

// Err returns the first rendering error, if any.
func (it *FrameIterator) Err() error { return it.err }

// All returns the remaining frames as a range-over-func sequence. A render
// error is yielded once as the final element.
func (it *FrameIterator) All() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for it.Next() {
			if !yield(it.cur, nil) {
				return
			}
		}
		if it.err != nil {
			yield(Frame{}, it.err)
		}
	}
}
