// Package session owns the per-user conversation sessions for multi-step
// flows. Each user has at most one active session; the store serializes
// mutations per owner and arms an inactivity timer that expires the session
// when no qualifying input arrives in time.
package session
