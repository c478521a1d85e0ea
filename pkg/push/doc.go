// Package push implements push-notification authentication: dispatching a
// push message to a registered device, cooperatively polling for the
// device's answer, and an emergency-code escape hatch consuming one-time
// recovery codes.
//
// Polling is client-driven. No server goroutine blocks waiting for the
// device; each poll re-enters the module, a wait-state advisor computes
// the next backoff interval, and timeout is detected lazily against a
// wall-clock deadline on the next poll.
package push
