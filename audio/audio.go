// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Clip is one decoded recording as it comes off a field device.
type Clip struct {
	// DeviceID is the recorder serial. Empty when the file carries no device tag.
	DeviceID string
	// RecordedAt is the raw, unparsed timestamp found in the file tags.
	RecordedAt string
	// SampleRate of the PCM stream in Hz.
	SampleRate int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels int
	// Samples holds interleaved 16-bit PCM.
	Samples []int16
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length in whole seconds.
func (c *Clip) Duration() int {
	if c.SampleRate <= 0 {
		return 0
	}
	return c.Frames() / c.SampleRate
}

// ClipReader decodes a Clip from a seekable input.
type ClipReader interface {
	ReadClip(r io.ReadSeeker) (*Clip, error)
}

// TagReader is implemented by clip readers that can report a clip's format
// and tags without decoding its samples. The returned Clip has no Samples.
type TagReader interface {
	ReadTags(r io.ReadSeeker) (*Clip, error)
}

// Registry maps file extensions (e.g., "wav") to clip readers.
// Lookups are case-insensitive.
type Registry struct {
	readers map[string]ClipReader

	mtx *sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[string]ClipReader),
		mtx:     &sync.RWMutex{},
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func (r *Registry) Register(ext string, cr ClipReader) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.readers[normalizeExt(ext)] = cr
}

func (r *Registry) Get(ext string) (ClipReader, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	cr, ok := r.readers[normalizeExt(ext)]
	return cr, ok
}

// ForPath returns the reader registered for the extension of path.
func (r *Registry) ForPath(path string) (ClipReader, bool) {
	return r.Get(filepath.Ext(path))
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	exts := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		exts = append(exts, ext)
	}
	slices.Sort(exts)

	return exts
}
