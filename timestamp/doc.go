// SPDX-License-Identifier: EPL-2.0

// Package timestamp parses the recording timestamps written by field
// recorders into their WAV comment tag.
//
// Recorders stamp files in local time followed by a parenthesised zone:
//
//	10:32:00 17/05/2023 (UTC-4)
//	15:09:20 25/04/2023 (UTC)
//
// Parse accepts "UTC", "UTC+H" and "UTC-H" (whole hours, the Unicode minus
// sign is accepted too) as well as names from the time zone database whose
// offset does not change during the year of the timestamp. Everything else,
// fractional offsets included, is rejected with ErrMalformedTimestamp rather
// than guessed.
//
// The returned time is always in UTC.
package timestamp
