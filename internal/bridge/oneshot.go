package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/history"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/sessionstate"
	"github.com/clareza/clareza/internal/stream"
)

// Texts of the system lines around a one-shot session.
const (
	msgProcessing = "⏳ Processando..."
	msgSeparator  = "─────────────────────────────────"
	msgDone       = "✅ Concluído"
	msgFailed     = "❌ Erro: "
	promptMarker  = "❯ "
	previewRunes  = 100
)

// Outcome is the single result of a one-shot session.
type Outcome struct {
	SessionID   string             `json:"session_id"`
	State       sessionstate.State `json:"state"`
	Model       string             `json:"model"`
	Text        string             `json:"text,omitempty"` // accumulated answer, Completed only
	Err         error              `json:"-"`
	ExitCode    *int               `json:"exit_code,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// OK reports whether the session completed successfully.
func (o Outcome) OK() bool {
	return o.State == sessionstate.Completed
}

// SessionInfo describes an in-flight one-shot session.
type SessionInfo struct {
	ID            string             `json:"session_id"`
	State         sessionstate.State `json:"state"`
	Model         string             `json:"model"`
	PromptPreview string             `json:"prompt_preview"`
	StartedAt     time.Time          `json:"started_at"`
	Pid           int                `json:"pid,omitempty"`
}

type session struct {
	id        string
	model     string
	req       PromptRequest
	startedAt time.Time
	machine   *sessionstate.Machine
	log       *logging.Logger
	pub       publisher
	cancel    context.CancelFunc

	mu         sync.Mutex
	pid        int
	transcript []stream.Event
}

func (s *session) advance(next sessionstate.State) {
	if err := s.machine.To(next); err != nil {
		s.log.Error("unexpected state change", map[string]any{"error": err.Error()})
	}
}

// emit publishes an event and keeps it for the history transcript.
func (s *session) emit(ev stream.Event) {
	s.mu.Lock()
	s.transcript = append(s.transcript, ev)
	s.mu.Unlock()
	s.pub.publish(stream.Output(s.id, ev))
}

// OneShot runs one process per prompt. Sessions are independent and may run
// concurrently.
type OneShot struct {
	opts Options
	log  *logging.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*session
	closed bool
}

// NewOneShot creates a one-shot runner.
func NewOneShot(opts Options) *OneShot {
	opts.setDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &OneShot{
		opts:   opts,
		log:    opts.Log.Named("bridge"),
		base:   base,
		cancel: cancel,
		active: make(map[string]*session),
	}
}

// Mode implements Bridge.
func (o *OneShot) Mode() string { return api.ModeOneShot }

// Submit starts a session in the background. The session outlives ctx; it
// ends on exit, timeout or Shutdown.
func (o *OneShot) Submit(ctx context.Context, req PromptRequest) (string, error) {
	id, _, err := o.launch(context.WithoutCancel(ctx), req)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Run executes a session and blocks until its outcome is known.
func (o *OneShot) Run(ctx context.Context, req PromptRequest) Outcome {
	_, done := o.Start(ctx, req)
	return <-done
}

// Start launches a session and returns its id and a channel that receives
// exactly one Outcome. Cancelling ctx kills the process. After Shutdown the
// outcome is Failed with ErrShuttingDown.
func (o *OneShot) Start(ctx context.Context, req PromptRequest) (string, <-chan Outcome) {
	id, done, _ := o.launch(ctx, req)
	return id, done
}

func (o *OneShot) launch(ctx context.Context, req PromptRequest) (string, <-chan Outcome, error) {
	id := uuid.New().String()
	log := o.log.WithSession(id)
	sess := &session{
		id:        id,
		model:     o.opts.Models.Get(),
		req:       req,
		startedAt: time.Now().UTC(),
		machine:   sessionstate.NewMachine(),
		log:       log,
		pub:       publisher{sink: o.opts.Sink, log: log, sessionID: id},
	}

	done := make(chan Outcome, 1)

	// wg.Add happens under mu so it never races Shutdown's Wait.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		out := Outcome{SessionID: id, Model: sess.model, StartedAt: sess.startedAt}
		done <- o.finish(sess, out, sessionstate.Failed, ErrShuttingDown, false)
		close(done)
		return id, done, ErrShuttingDown
	}
	ctx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	o.active[id] = sess
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		stop := context.AfterFunc(o.base, cancel)
		defer stop()
		defer cancel()

		out := o.run(ctx, sess)

		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
		done <- out
		close(done)
	}()
	return id, done, nil
}

// Active lists sessions that have not reached an outcome yet.
func (o *OneShot) Active() []SessionInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	infos := make([]SessionInfo, 0, len(o.active))
	for _, s := range o.active {
		s.mu.Lock()
		pid := s.pid
		s.mu.Unlock()
		infos = append(infos, SessionInfo{
			ID:            s.id,
			State:         s.machine.State(),
			Model:         s.model,
			PromptPreview: Preview(s.req.UserText, previewRunes),
			StartedAt:     s.startedAt,
			Pid:           pid,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// Cancel kills an in-flight session. The session ends Failed with
// context.Canceled.
func (o *OneShot) Cancel(id string) error {
	o.mu.Lock()
	sess, ok := o.active[id]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	sess.log.Info("cancel requested")
	sess.cancel()
	return nil
}

// Shutdown kills every in-flight session and waits for their outcomes.
// Sessions started afterwards fail with ErrShuttingDown.
func (o *OneShot) Shutdown() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
	return nil
}

func (o *OneShot) run(ctx context.Context, s *session) Outcome {
	out := Outcome{SessionID: s.id, Model: s.model, StartedAt: s.startedAt}

	s.advance(sessionstate.Resolving)
	exe, err := o.opts.Locator.Locate()
	if err != nil {
		s.advance(sessionstate.Failed)
		return o.finish(s, out, sessionstate.Failed, err, false)
	}

	s.advance(sessionstate.Spawning)
	s.emit(stream.Event{Message: promptMarker + Preview(s.req.UserText, previewRunes), Stream: stream.ChannelSystem})
	s.emit(stream.Event{Message: msgProcessing, Stream: stream.ChannelSystem})

	prompt := s.req.FullPrompt()
	goos := o.opts.Locator.goos()
	delivery := DeliveryFor(goos, exe, o.opts.Delivery)
	if delivery != o.opts.Delivery {
		s.log.Debug("batch executable, prompt goes over stdin", map[string]any{"executable": exe})
	}
	spawn := SpawnRequest{
		Path:  exe,
		Args:  BuildArgs(s.model, delivery, prompt),
		Dir:   o.opts.Dir,
		Env:   o.opts.Env,
		Stdin: StdinClose,
		GOOS:  goos,
	}
	if delivery != api.DeliveryArgument {
		spawn.Input = prompt
	}
	proc, err := Spawn(spawn)
	if err != nil {
		s.advance(sessionstate.Failed)
		return o.finish(s, out, sessionstate.Failed, err, false)
	}
	metrics.RecordSessionStart()
	s.mu.Lock()
	s.pid = proc.Pid()
	s.mu.Unlock()
	s.log.Info("session started", map[string]any{
		"pid":           proc.Pid(),
		"executable":    exe,
		"model":         s.model,
		"delivery":      delivery,
		"prompt_length": len(prompt),
		"timeout":       o.opts.Timeout.String(),
	})

	s.advance(sessionstate.Streaming)
	el := stream.NewEventLogger(s.log)
	var acc stream.Accumulator
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		pump(proc.Stdout, stream.ChannelStdout, el, func(r stream.Result) {
			acc.Add(r)
			if r.Emit {
				s.emit(r.Event)
			}
		})
	}()
	go func() {
		defer readers.Done()
		pump(proc.Stderr, stream.ChannelStderr, el, func(r stream.Result) {
			if r.Emit {
				s.emit(r.Event)
			}
		})
	}()

	timer := time.NewTimer(o.opts.Timeout)
	defer timer.Stop()

	var cause error
	select {
	case <-proc.Done():
	case <-timer.C:
		cause = fmt.Errorf("%w after %s", ErrTimeout, o.opts.Timeout)
		s.log.Warn("session timed out, killing process", map[string]any{"pid": proc.Pid()})
	case <-ctx.Done():
		cause = ctx.Err()
		s.log.Info("session cancelled, killing process", map[string]any{"pid": proc.Pid()})
	}
	if cause != nil {
		if err := proc.Kill(); err != nil {
			s.log.Error("failed to kill process", map[string]any{"pid": proc.Pid(), "error": err.Error()})
		}
		<-proc.Done()
	}

	s.advance(sessionstate.Draining)
	joinReaders(&readers, proc, s.log)
	if err := proc.InputErr(); err != nil {
		s.log.Warn("writing prompt to stdin failed", map[string]any{"error": err.Error()})
	}

	if code := proc.ExitCode(); code >= 0 {
		out.ExitCode = &code
	}

	switch {
	case errors.Is(cause, ErrTimeout):
		s.advance(sessionstate.TimedOut)
		return o.finish(s, out, sessionstate.TimedOut, cause, true)
	case cause != nil:
		s.advance(sessionstate.Failed)
		return o.finish(s, out, sessionstate.Failed, cause, true)
	}

	if werr := proc.Err(); werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			err = fmt.Errorf("%w: %s", ErrNonZeroExit, exitErr.ProcessState.String())
		} else {
			err = fmt.Errorf("waiting for process: %w", werr)
		}
		s.advance(sessionstate.Failed)
		return o.finish(s, out, sessionstate.Failed, err, true)
	}

	out.Text = acc.String()
	s.advance(sessionstate.Completed)
	return o.finish(s, out, sessionstate.Completed, nil, true)
}

// finish publishes the closing lines, records the session and returns the
// outcome. It runs exactly once per session.
func (o *OneShot) finish(s *session, out Outcome, state sessionstate.State, err error, spawned bool) Outcome {
	out.State = state
	out.Err = err
	out.CompletedAt = time.Now().UTC()
	duration := out.CompletedAt.Sub(out.StartedAt)

	if err == nil {
		s.emit(stream.Event{Message: msgSeparator, Stream: stream.ChannelSystem})
		s.emit(stream.Event{Message: msgDone, Stream: stream.ChannelSystem})
		s.pub.publish(stream.Complete(s.id, out.Text))
		s.log.Info("session completed", map[string]any{
			"duration_seconds": duration.Seconds(),
			"answer_length":    len(out.Text),
		})
	} else {
		s.emit(stream.Event{Message: msgFailed + err.Error(), Stream: stream.ChannelStderr})
		s.log.Error("session failed", map[string]any{
			"state":      string(state),
			"error_type": ErrorType(err),
			"error":      err.Error(),
		})
	}

	if spawned {
		metrics.RecordSessionEnd(string(state), duration)
	} else {
		metrics.RecordSessionRejected(string(state))
	}
	o.record(s, out)
	return out
}

func (o *OneShot) record(s *session, out Outcome) {
	if o.opts.History == nil {
		return
	}
	entry := &history.Entry{
		SessionID:   s.id,
		State:       string(out.State),
		Prompt:      s.req.UserText,
		Model:       s.model,
		StartedAt:   out.StartedAt,
		CompletedAt: out.CompletedAt,
		ExitCode:    out.ExitCode,
		Output:      out.Text,
	}
	if out.Err != nil {
		entry.Error = &history.EntryError{Type: ErrorType(out.Err), Message: out.Err.Error()}
	}
	if err := o.opts.History.Save(entry); err != nil {
		s.log.Warn("failed to save history", map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	transcript := append([]stream.Event(nil), s.transcript...)
	s.mu.Unlock()
	if err := o.opts.History.SaveTranscript(s.id, transcript); err != nil {
		s.log.Warn("failed to save transcript", map[string]any{"error": err.Error()})
	}
}
