// Package events publishes job lifecycle events.
//
// A Publisher receives one Event per job transition and per progress step.
// NATSPublisher sends them as JSON to `<prefix>.events.<type>` subjects; Nop
// discards them when no broker is configured. SubscribeSubmissions lets a
// long-running process accept job submissions from the same broker.
package events
