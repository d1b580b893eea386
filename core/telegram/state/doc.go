// Package state keeps per-user conversation sessions for the bots.
// Sessions are short lived: every store expires entries after an idle TTL,
// after which Get reports the session as absent.
package state
