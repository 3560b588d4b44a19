// Package transcribe runs WhisperX over normalized lecture audio and converts
// its JSON output into a transcript of timed, speaker-labelled segments.
//
// WhisperX is invoked through uvx so no Python environment has to be
// managed. Diarization is optional and needs a Hugging Face token.
package transcribe
