// SPDX-License-Identifier: EPL-2.0

package wav_test

import (
	"bytes"
	"fmt"

	"github.com/ik5/uwloc/formats/wav"
)

func ExampleWriteWAV16() {
	samples := []int16{100, -100, 200, -200}

	buf := new(bytes.Buffer)
	if err := wav.WriteWAV16(buf, 8000, samples); err != nil {
		fmt.Println(err)
		return
	}

	clip, err := wav.Reader{}.ReadClip(bytes.NewReader(buf.Bytes()))
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("%d Hz, %d channel(s), device %q\n", clip.SampleRate, clip.Channels, clip.DeviceID)
	// Output: 8000 Hz, 1 channel(s), device ""
}

func ExampleDeviceFromArtist() {
	fmt.Println(wav.DeviceFromArtist("AudioMoth 24F3190361DA539A"))
	// Output: 24F3190361DA539A
}
