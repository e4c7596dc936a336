package stream

import (
	"fmt"
	"sync"
	"time"
)

// DefaultRevealInterval is the delay between two character reveals.
const DefaultRevealInterval = 10 * time.Millisecond

// File is one entry of a reveal session. Final marks the content as
// complete; a non-final file whose content is exhausted makes the
// scheduler wait for more instead of advancing.
type File struct {
	Name    string
	Content string
	Final   bool
}

type revealFile struct {
	name  string
	runes []rune
	final bool
}

// Revealer animates generated files character by character, in file order.
// Each tick reveals exactly one character of the current file; when a
// final file is fully revealed the cursor advances to the next one. After
// the last file the completion callback fires exactly once per session.
//
// All methods are safe for concurrent use. A stale timer from a previous
// session can never mutate the state of a newer one.
type Revealer struct {
	mu         sync.Mutex
	interval   time.Duration
	onReveal   func(name, visible string)
	onComplete func()

	session   int
	files     []revealFile
	fileIndex int
	charIndex int
	running   bool
	completed bool
	timer     *time.Timer
}

// NewRevealer constructs a scheduler. interval <= 0 selects the default.
// Either callback may be nil.
func NewRevealer(interval time.Duration, onReveal func(name, visible string), onComplete func()) *Revealer {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return &Revealer{
		interval:   interval,
		onReveal:   onReveal,
		onComplete: onComplete,
	}
}

// SetFiles starts a new session: all cursors reset, any pending tick is
// cancelled, and the completion callback is re-armed.
func (r *Revealer) SetFiles(files []File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session++
	r.stopTimerLocked()
	r.files = make([]revealFile, 0, len(files))
	for _, f := range files {
		r.files = append(r.files, revealFile{name: f.Name, runes: []rune(f.Content), final: f.Final})
	}
	r.fileIndex = 0
	r.charIndex = 0
	r.completed = false
	r.running = false
}

// UpdateContent grows a file's content mid-session, e.g. while deltas are
// still arriving. Content must never shrink.
func (r *Revealer) UpdateContent(name, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.files {
		if r.files[i].name != name {
			continue
		}
		runes := []rune(content)
		if len(runes) < len(r.files[i].runes) {
			return fmt.Errorf("content for %q shrank from %d to %d characters", name, len(r.files[i].runes), len(runes))
		}
		r.files[i].runes = runes
		return nil
	}
	return fmt.Errorf("unknown file %q", name)
}

// MarkFinal seals a file so the cursor may advance past it once fully
// revealed.
func (r *Revealer) MarkFinal(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.files {
		if r.files[i].name == name {
			r.files[i].final = true
			return
		}
	}
}

// Start begins (or resumes) revealing. Starting a running or completed
// session is a no-op.
func (r *Revealer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.completed || len(r.files) == 0 {
		return
	}
	r.running = true
	r.scheduleLocked()
}

// Stop cancels any pending tick. Idempotent; safe to call on teardown at
// any time.
func (r *Revealer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.stopTimerLocked()
}

func (r *Revealer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Revealer) scheduleLocked() {
	session := r.session
	r.timer = time.AfterFunc(r.interval, func() { r.tick(session) })
}

// skipRevealedLocked moves the cursor past every fully revealed final
// file. Non-final files block the cursor until more content arrives.
func (r *Revealer) skipRevealedLocked() {
	for r.fileIndex < len(r.files) {
		f := &r.files[r.fileIndex]
		if r.charIndex >= len(f.runes) && f.final {
			r.fileIndex++
			r.charIndex = 0
			continue
		}
		break
	}
}

func (r *Revealer) tick(session int) {
	r.mu.Lock()
	if session != r.session || !r.running || r.completed {
		r.mu.Unlock()
		return
	}

	var (
		revealName    string
		revealVisible string
		fireComplete  bool
	)

	r.skipRevealedLocked()
	if r.fileIndex < len(r.files) {
		current := &r.files[r.fileIndex]
		if r.charIndex < len(current.runes) {
			r.charIndex++
			revealName = current.name
			revealVisible = string(current.runes[:r.charIndex])
		}
		// Advance again so completion is detected on the same tick as the
		// last reveal.
		r.skipRevealedLocked()
	}

	if r.fileIndex >= len(r.files) {
		r.completed = true
		r.running = false
		r.stopTimerLocked()
		fireComplete = true
	} else {
		r.scheduleLocked()
	}
	r.mu.Unlock()

	if revealName != "" && r.onReveal != nil {
		r.onReveal(revealName, revealVisible)
	}
	if fireComplete && r.onComplete != nil {
		r.onComplete()
	}
}
