// Package encode converts source audio into Red Book PCM through ffmpeg. A
// transcoder owns a bounded worker pool shared across every disc being
// staged, normalizes each track to 44.1kHz stereo s16le, and pads the output
// to whole 2352-byte frames so the image stager can concatenate tracks
// without resampling or alignment work.
package encode
