// Package preflight provides readiness checks for the external tools,
// services, and filesystem paths lecturebook depends on.
//
// These checks run in two contexts:
//   - `run` and `serve` call RunAll before accepting work. A failed required
//     check stops the command before hours of audio are downloaded.
//   - `doctor` additionally calls the network checks (CheckLLM,
//     CheckVerseSite, CheckNATS) to display service health.
//
// Optional features are only checked when configured.
package preflight
