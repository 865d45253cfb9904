// SPDX-License-Identifier: EPL-2.0

// Package uwloc ingests underwater acoustic monitor recordings into a
// time-indexed array store.
//
// Field recorders write one WAV file per recording window, stamped with the
// recorder serial and a local start time. uwloc lays all of them out in a
// single two dimensional array: one row per device, one column per sample
// since the deployment start date. Any time window of any device can then be
// sliced without knowing which file it came from.
//
// # Packages
//
//   - timestamp: parses recorder timestamps such as "10:32:00 17/05/2023 (UTC-4)"
//   - formats/wav: decodes recorder WAV files and their INFO tags
//   - audio: clip readers registry, mono mixing and resampling
//   - utils: sample/time arithmetic
//
// The storage side (array store, device registry, sample store, database
// lifecycle) lives under internal/ and is driven by the uwloc command.
//
// # Quick Start
//
//	rec, err := uwloc.LoadRecording("/data/unit7/20230517_103200.WAV",
//	    uwloc.LoadOptions{SampleRate: 192000})
//	if err != nil {
//	    // corrupt file, unparseable timestamp, foreign sample rate
//	}
//	if rec.DeviceID == "" {
//	    // untagged file, skip it
//	}
//
// From the command line:
//
//	uwloc initdb ./deployment.db ./wavs
//	uwloc import ./deployment.db ./more-wavs
//	uwloc slice ./deployment.db 24F3190361DA539A 120 180 -o clip.wav
//	uwloc serve ./deployment.db
package uwloc
