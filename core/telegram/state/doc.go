// Package state keeps per-user conversation steps in memory and dispatches
// text updates to the handler registered for the current step.
package state
