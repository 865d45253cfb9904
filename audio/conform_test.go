// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"slices"
	"testing"
)

func TestConform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		clip          *Clip
		rate          int
		allowResample bool
		wantLen       int
		wantErr       error
	}{
		{
			name:    "mono at deployment rate",
			clip:    &Clip{SampleRate: 8000, Channels: 1, Samples: make([]int16, 8000)},
			rate:    8000,
			wantLen: 8000,
		},
		{
			name:    "stereo is mixed down",
			clip:    &Clip{SampleRate: 8000, Channels: 2, Samples: make([]int16, 16000)},
			rate:    8000,
			wantLen: 8000,
		},
		{
			name:    "foreign rate rejected",
			clip:    &Clip{SampleRate: 48000, Channels: 1, Samples: make([]int16, 48000)},
			rate:    192000,
			wantErr: ErrSampleRateMismatch,
		},
		{
			name:          "foreign rate resampled on request",
			clip:          &Clip{SampleRate: 48000, Channels: 1, Samples: make([]int16, 48000)},
			rate:          96000,
			allowResample: true,
			wantLen:       96000,
		},
		{
			name:    "zero clip rate",
			clip:    &Clip{Channels: 1, Samples: []int16{1}},
			rate:    8000,
			wantErr: ErrInvalidSampleRate,
		},
		{
			name:    "ragged interleaving",
			clip:    &Clip{SampleRate: 8000, Channels: 2, Samples: []int16{1, 2, 3}},
			rate:    8000,
			wantErr: ErrInvalidChannels,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Conform(tt.clip, tt.rate, tt.allowResample)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Conform() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Conform() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len(Conform()) = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestConform_MonoKeepsSamples(t *testing.T) {
	t.Parallel()

	samples := []int16{5, -5, 1000, -1000}
	got, err := Conform(&Clip{SampleRate: 4, Channels: 1, Samples: samples}, 4, false)
	if err != nil {
		t.Fatalf("Conform() error = %v", err)
	}
	if !slices.Equal(got, samples) {
		t.Errorf("Conform() = %v, want %v", got, samples)
	}
}
