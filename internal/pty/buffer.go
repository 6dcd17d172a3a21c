package pty

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// replayBuffer keeps the most recent output of a terminal so a UI that
// attaches late can repaint.
type replayBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newReplayBuffer(limit int) *replayBuffer {
	return &replayBuffer{limit: limit}
}

func (r *replayBuffer) append(data []byte) {
	if r.limit <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, data...)
	if len(r.buf) > r.limit {
		r.buf = r.buf[len(r.buf)-r.limit:]
	}
}

func (r *replayBuffer) snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(r.buf))
	copy(cp, r.buf)
	return cp
}

// lineHistory reconstructs submitted input lines from the raw bytes written
// to a terminal. Backspace edits the pending line; escape sequences (arrow
// keys and the like) are dropped.
type lineHistory struct {
	mu      sync.Mutex
	limit   int
	lines   []string
	pending []byte
	inEsc   bool
	inCSI   bool
}

func newLineHistory(limit int, seed []string) *lineHistory {
	h := &lineHistory{limit: limit}
	for _, line := range seed {
		h.push(line)
	}
	return h
}

func (h *lineHistory) record(data []byte) {
	if h.limit <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range data {
		switch {
		case h.inCSI:
			if b >= 0x40 && b <= 0x7e {
				h.inCSI = false
			}
		case h.inEsc:
			h.inEsc = false
			if b == '[' || b == 'O' {
				h.inCSI = true
			}
		case b == 0x1b:
			h.inEsc = true
		case b == '\r' || b == '\n':
			if line := strings.TrimSpace(string(h.pending)); line != "" {
				h.push(line)
			}
			h.pending = h.pending[:0]
		case b == 0x7f || b == 0x08:
			if len(h.pending) > 0 {
				_, size := utf8.DecodeLastRune(h.pending)
				h.pending = h.pending[:len(h.pending)-size]
			}
		case b == 0x03 || b == 0x15:
			// ^C and ^U discard the line being typed
			h.pending = h.pending[:0]
		case b < 0x20:
		default:
			h.pending = append(h.pending, b)
		}
	}
}

func (h *lineHistory) push(line string) {
	h.lines = append(h.lines, line)
	if len(h.lines) > h.limit {
		h.lines = h.lines[len(h.lines)-h.limit:]
	}
}

func (h *lineHistory) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.lines...)
}
