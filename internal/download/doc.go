// Package download retrieves lecture audio from YouTube-like platforms
// (through yt-dlp), direct HTTP links, or local files, and normalizes it to
// the WAV format the transcriber expects.
package download
