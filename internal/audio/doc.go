// Package audio wraps the ffprobe and ffmpeg binaries used to inspect source
// media and normalize it to the mono 16 kHz WAV the transcriber expects.
package audio
