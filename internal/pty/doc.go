// Package pty runs interactive shells on pseudo-terminals and turns their
// output into a single ordered stream of events.
//
// A Manager owns a registry of sessions. Each session has one reader
// goroutine that copies PTY output onto the caller's event channel. Sends
// block when the channel is full, so a slow consumer pauses the PTY rather
// than losing bytes. A session ends exactly once: by Close, by the reader
// seeing EOF, or by a read error. Only the last two emit a final event.
package pty
