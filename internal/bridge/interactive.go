package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/stream"
)

// InteractiveStatus describes the interactive session.
type InteractiveStatus struct {
	Running   bool       `json:"running"`
	SessionID string     `json:"session_id,omitempty"`
	Model     string     `json:"model,omitempty"`
	Pid       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// liveProcess is the single running interactive process.
type liveProcess struct {
	id        string
	model     string
	proc      *Process
	startedAt time.Time
	log       *logging.Logger
	pub       publisher

	writeMu sync.Mutex
	done    chan struct{} // closed after cleanup
}

// Interactive keeps at most one tool process alive and feeds it text over
// stdin. Stopping it and the process exiting on its own go through the same
// cleanup.
type Interactive struct {
	opts Options
	log  *logging.Logger

	mu  sync.Mutex
	cur *liveProcess
}

// NewInteractive creates an interactive session manager in the stopped state.
func NewInteractive(opts Options) *Interactive {
	opts.setDefaults()
	return &Interactive{opts: opts, log: opts.Log.Named("interactive")}
}

// Mode implements Bridge.
func (s *Interactive) Mode() string { return api.ModeInteractive }

// Start launches the process with stdin kept open and sends a blank line to
// wake it. It fails with ErrAlreadyRunning while a process is alive; any
// other failure is also reported as one error line on the event stream.
func (s *Interactive) Start(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := s.start(ctx, id); err != nil {
		if !errors.Is(err, ErrAlreadyRunning) {
			s.fail(id, err)
		}
		return "", err
	}
	return id, nil
}

// fail publishes the single user-visible message for a failed operation.
func (s *Interactive) fail(id string, err error) {
	log := s.log.WithSession(id)
	log.Error("interactive session failed", map[string]any{
		"error_type": ErrorType(err),
		"error":      err.Error(),
	})
	publisher{sink: s.opts.Sink, log: log, sessionID: id}.line(msgFailed+err.Error(), stream.ChannelStderr)
}

func (s *Interactive) start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	exe, err := s.opts.Locator.Locate()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	model := s.opts.Models.Get()
	proc, err := Spawn(SpawnRequest{
		Path:  exe,
		Args:  BuildArgs(model, api.DeliveryStdin, ""),
		Dir:   s.opts.Dir,
		Env:   s.opts.Env,
		Stdin: StdinKeepOpen,
		GOOS:  s.opts.Locator.GOOS,
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := io.WriteString(proc.Stdin, "\n"); err != nil {
		proc.Kill()
		<-proc.Done()
		proc.Close()
		s.mu.Unlock()
		return fmt.Errorf("%w: keep-alive write: %w", ErrSpawn, err)
	}

	log := s.log.WithSession(id)
	live := &liveProcess{
		id:        id,
		model:     model,
		proc:      proc,
		startedAt: time.Now().UTC(),
		log:       log,
		pub:       publisher{sink: s.opts.Sink, log: log, sessionID: id},
		done:      make(chan struct{}),
	}
	s.cur = live
	s.mu.Unlock()

	metrics.SetInteractiveRunning(true)
	log.Info("interactive session started", map[string]any{
		"pid":        proc.Pid(),
		"executable": exe,
		"model":      model,
	})
	live.pub.publish(stream.Lifecycle(id, stream.LifecycleStarted, nil))
	go s.monitor(live)
	return nil
}

// monitor forwards output until the process exits, then releases it.
func (s *Interactive) monitor(live *liveProcess) {
	el := stream.NewEventLogger(live.log)
	forward := func(r stream.Result) {
		if r.Emit {
			live.pub.publish(stream.Output(live.id, r.Event))
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		pump(live.proc.Stdout, stream.ChannelStdout, el, forward)
	}()
	go func() {
		defer readers.Done()
		pump(live.proc.Stderr, stream.ChannelStderr, el, forward)
	}()

	<-live.proc.Done()
	joinReaders(&readers, live.proc, live.log)

	s.mu.Lock()
	if s.cur == live {
		s.cur = nil
	}
	s.mu.Unlock()
	metrics.SetInteractiveRunning(false)

	code := live.proc.ExitCode()
	live.log.Info("interactive session ended", map[string]any{
		"exit_code": code,
		"killed":    live.proc.Killed(),
		"duration":  time.Since(live.startedAt).Seconds(),
	})
	var exitCode *int
	if code >= 0 {
		exitCode = &code
	}
	live.pub.publish(stream.Lifecycle(live.id, stream.LifecycleTerminated, exitCode))
	close(live.done)
}

// Send writes text and a newline to the running process.
func (s *Interactive) Send(text string) error {
	s.mu.Lock()
	live := s.cur
	s.mu.Unlock()
	if live == nil {
		return ErrNotRunning
	}

	live.writeMu.Lock()
	defer live.writeMu.Unlock()
	if _, err := io.WriteString(live.proc.Stdin, text+"\n"); err != nil {
		err = fmt.Errorf("writing to interactive session: %w", err)
		s.fail(live.id, err)
		return err
	}
	live.log.Debug("input sent", map[string]any{"length": len(text)})
	return nil
}

// Stop kills the running process and waits for its cleanup. Stopping when
// nothing runs is a no-op.
func (s *Interactive) Stop() error {
	s.mu.Lock()
	live := s.cur
	s.mu.Unlock()
	if live == nil {
		return nil
	}

	if err := live.proc.Kill(); err != nil {
		return fmt.Errorf("killing interactive process: %w", err)
	}
	<-live.done
	return nil
}

// Status reports whether a process is running.
func (s *Interactive) Status() InteractiveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return InteractiveStatus{}
	}
	started := s.cur.startedAt
	return InteractiveStatus{
		Running:   true,
		SessionID: s.cur.id,
		Model:     s.cur.model,
		Pid:       s.cur.proc.Pid(),
		StartedAt: &started,
	}
}

// Submit implements Bridge: it starts the process when needed, echoes the
// prompt as a system line and sends the full prompt.
func (s *Interactive) Submit(ctx context.Context, req PromptRequest) (string, error) {
	if _, err := s.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		return "", err
	}

	s.mu.Lock()
	live := s.cur
	s.mu.Unlock()
	if live == nil {
		// The process exited between start and send.
		s.fail(uuid.New().String(), ErrNotRunning)
		return "", ErrNotRunning
	}

	live.pub.publish(stream.Output(live.id, stream.Event{
		Message: promptMarker + Preview(req.UserText, previewRunes),
		Stream:  stream.ChannelSystem,
	}))
	if err := s.Send(req.FullPrompt()); err != nil {
		return "", err
	}
	return live.id, nil
}

// Shutdown implements Bridge.
func (s *Interactive) Shutdown() error {
	return s.Stop()
}
