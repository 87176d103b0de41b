package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelinetan/reverie/internal/playback"
	"github.com/avelinetan/reverie/internal/reliability"
)

// ErrNoRecognizer is returned by Start when no recognizer was supplied, which
// is the case on platforms without speech recognition support.
var ErrNoRecognizer = errors.New("capture: no recognizer available")

// Recognizer streams recognition events. Listen blocks, invoking emit for
// each update, until the stream ends or ctx is cancelled. A nil return means
// the stream ended on its own; platform recognizers routinely stop after a
// stretch of silence even when more dictation is wanted.
type Recognizer interface {
	Listen(ctx context.Context, emit func(Event)) error
}

// State is the capture lifecycle position.
type State int

const (
	StateIdle State = iota
	StateListening
)

func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "idle"
}

// Config tunes capture behavior.
type Config struct {
	// Continuous restarts the recognizer when its stream ends on its own,
	// so one Start covers a whole dictation session.
	Continuous bool
	// RestartDelay spaces out those restarts.
	RestartDelay time.Duration
}

// Snapshot is the observable capture state handed to update subscribers.
type Snapshot struct {
	State     State
	Committed []string
	Interim   string
	Err       error
}

// Capture runs the speech-capture state machine: idle until Start, listening
// until Stop, a recognizer error, or a non-continuous stream end. Activating
// capture goes through the shared playback coordinator, so starting dictation
// silences any speech output and vice versa.
type Capture struct {
	cfg      Config
	coord    *playback.Coordinator
	rec      Recognizer
	handleID string
	logf     func(format string, args ...any)

	mu         sync.Mutex
	state      State
	gen        uint64
	cancel     context.CancelFunc
	transcript Transcript
	lastErr    error
	restarts   int
	onUpdate   func(Snapshot)
}

func New(cfg Config, coord *playback.Coordinator, rec Recognizer) *Capture {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 250 * time.Millisecond
	}
	c := &Capture{
		cfg:      cfg,
		coord:    coord,
		rec:      rec,
		handleID: "capture-" + uuid.NewString(),
		logf:     log.Printf,
	}
	coord.Register(c.handleID, playback.KindCapture, c.Stop)
	return c
}

// SetLogf replaces the logger. Useful in tests.
func (c *Capture) SetLogf(logf func(format string, args ...any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logf = logf
}

// SetOnUpdate installs the subscriber notified after every state or
// transcript change. Pass nil to clear.
func (c *Capture) SetOnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// HandleID returns the coordinator registry id owned by capture.
func (c *Capture) HandleID() string { return c.handleID }

// State returns the current lifecycle position.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether dictation is running.
func (c *Capture) Listening() bool { return c.State() == StateListening }

// Committed returns the finalized utterances heard so far.
func (c *Capture) Committed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Committed()
}

// Text returns everything heard so far, interim guess included.
func (c *Capture) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Text()
}

// Start begins listening with a new, empty transcript. Already listening is a
// no-op; a missing recognizer is ErrNoRecognizer. Stop preserves what was
// heard, so callers that want the text of a finished dictation read it before
// starting the next one.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.rec == nil {
		c.mu.Unlock()
		return ErrNoRecognizer
	}
	if c.state == StateListening {
		c.mu.Unlock()
		return nil
	}
	listenCtx, cancel := context.WithCancel(ctx)
	c.gen++
	myGen := c.gen
	c.cancel = cancel
	c.state = StateListening
	c.transcript.Reset()
	c.lastErr = nil
	c.restarts = 0
	c.mu.Unlock()

	c.coord.SetActive(c.handleID, true)
	c.notify()

	go c.listenLoop(listenCtx, myGen)
	return nil
}

// Stop ends listening. Idempotent; the transcript is preserved.
func (c *Capture) Stop() {
	c.mu.Lock()
	c.gen++
	cancel := c.cancel
	c.cancel = nil
	wasListening := c.state == StateListening
	c.state = StateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.coord.SetActive(c.handleID, false)
	if wasListening {
		c.notify()
	}
}

// Reset stops listening and discards the transcript.
func (c *Capture) Reset() {
	c.Stop()
	c.mu.Lock()
	c.transcript.Reset()
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// Close unregisters capture's coordinator handle.
func (c *Capture) Close() {
	c.Stop()
	c.coord.Unregister(c.handleID)
}

func (c *Capture) listenLoop(ctx context.Context, myGen uint64) {
	for {
		err := c.rec.Listen(ctx, func(ev Event) {
			c.apply(myGen, ev)
		})

		c.mu.Lock()
		if c.gen != myGen {
			// A Stop or a newer Start owns the state now.
			c.mu.Unlock()
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.state = StateIdle
			c.cancel = nil
			c.lastErr = err
			logf := c.logf
			c.mu.Unlock()
			logf("capture: recognizer failed: %v", err)
			c.coord.SetActive(c.handleID, false)
			c.notify()
			return
		}
		if err != nil || !c.cfg.Continuous {
			c.state = StateIdle
			c.cancel = nil
			c.mu.Unlock()
			c.coord.SetActive(c.handleID, false)
			c.notify()
			return
		}
		// Recognizers that keep ending without hearing anything get spaced
		// out; the counter resets as soon as an event arrives.
		delay := reliability.ExponentialBackoff(c.restarts, c.cfg.RestartDelay, 10*c.cfg.RestartDelay)
		c.restarts++
		c.mu.Unlock()

		// Continuous mode: the platform stream ended on its own, keep going.
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Capture) apply(myGen uint64, ev Event) {
	c.mu.Lock()
	if c.gen != myGen {
		c.mu.Unlock()
		return
	}
	changed := c.transcript.Apply(ev)
	c.restarts = 0
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Capture) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	snap := Snapshot{
		State:     c.state,
		Committed: c.transcript.Committed(),
		Interim:   c.transcript.Interim(),
		Err:       c.lastErr,
	}
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
