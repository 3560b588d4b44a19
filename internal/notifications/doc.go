// Package notifications pushes finished-job events to ntfy.
//
// The publisher plugs into the job supervisor next to the NATS publisher and
// only reacts to completed, failed and cancelled jobs. An empty
// events.ntfy_topic disables it.
package notifications
