package audio

import "fmt"

// MixToMono averages interleaved frames down to a single channel.
// Mono input is returned as is, without copying.
func MixToMono(interleaved []int16, channels int) ([]int16, error) {
	if channels <= 0 || len(interleaved)%channels != 0 {
		return nil, fmt.Errorf("%w: %d channels, %d samples", ErrInvalidChannels, channels, len(interleaved))
	}

	if channels == 1 {
		return interleaved, nil
	}

	frames := len(interleaved) / channels
	mono := make([]int16, frames)

	switch channels {
	case 2: // Stereo (most common)
		for f := range frames {
			idx := f << 1
			mono[f] = int16((int32(interleaved[idx]) + int32(interleaved[idx+1])) / 2)
		}
	default:
		for f := range frames {
			var sum int32
			base := f * channels
			for c := range channels {
				sum += int32(interleaved[base+c])
			}
			mono[f] = int16(sum / int32(channels))
		}
	}

	return mono, nil
}
