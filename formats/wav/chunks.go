// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/riff"
	gowav "github.com/go-audio/wav"
)

const chunkHeaderSize = 8

var dataChunkID = [4]byte{'d', 'a', 't', 'a'}

// checkChunks walks the top level RIFF chunks of r and the entries of every
// LIST INFO chunk, rejecting any size that runs past its container. The
// decoder allocates LIST chunks and their entries whole, so a size is checked
// before it is ever decoded. The data chunk is streamed and may be truncated.
func checkChunks(r io.ReadSeeker) error {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotWavFile, err)
	}

	pos := int64(12)
	for pos+chunkHeaderSize <= end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("seek: %w", err)
		}

		id, size, err := p.IDnSize()
		if err != nil {
			return fmt.Errorf("%w: chunk header at %d: %w", ErrNotWavFile, pos, err)
		}

		body := pos + chunkHeaderSize
		if body+int64(size) > end {
			if id == dataChunkID {
				return nil
			}
			return fmt.Errorf("%w: %q chunk at %d claims %d bytes, file has %d", ErrNotWavFile, id[:], pos, size, end)
		}

		if id == gowav.CIDList {
			if err := checkInfoEntries(r, p, body, int64(size)); err != nil {
				return err
			}
		}

		pos = body + int64(size) + int64(size&1)
	}

	return nil
}

func checkInfoEntries(r io.ReadSeeker, p *riff.Parser, start, size int64) error {
	if size < int64(len(gowav.CIDInfo)) {
		return nil
	}

	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	kind := make([]byte, len(gowav.CIDInfo))
	if _, err := io.ReadFull(r, kind); err != nil {
		return fmt.Errorf("%w: LIST type: %w", ErrNotWavFile, err)
	}
	if !bytes.Equal(kind, gowav.CIDInfo) {
		return nil
	}

	end := start + size
	pos := start + int64(len(kind))

	for pos+chunkHeaderSize <= end {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("seek: %w", err)
		}

		id, n, err := p.IDnSize()
		if err != nil {
			return fmt.Errorf("%w: INFO entry at %d: %w", ErrNotWavFile, pos, err)
		}

		body := pos + chunkHeaderSize
		if body+int64(n) > end {
			return fmt.Errorf("%w: INFO %q at %d claims %d bytes, LIST ends at %d", ErrNotWavFile, id[:], pos, n, end)
		}

		pos = body + int64(n) + int64(n&1)
	}

	return nil
}
