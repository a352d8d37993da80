// Package media loads source audio files into Track values. Durations come
// from ffprobe so frame accounting works from exact sub-second values rather
// than rounded seconds.
package media
