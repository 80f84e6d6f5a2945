// Package bridge runs an external AI command-line tool and streams its output
// to the UI as notifications.
//
// Two strategies share one pipeline: OneShot launches a process per prompt
// and reports a single Outcome; Interactive keeps one process alive and feeds
// it prompts over stdin. Both read stdout and stderr concurrently, route each
// line through the stream package and publish the results to a stream.Sink.
package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/config"
	"github.com/clareza/clareza/internal/history"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/stream"
)

// Bridge accepts prompts for the tool.
type Bridge interface {
	// Mode returns api.ModeOneShot or api.ModeInteractive.
	Mode() string
	// Submit hands a prompt to the tool and returns the session it belongs to.
	// Output arrives through the configured sink.
	Submit(ctx context.Context, req PromptRequest) (string, error)
	// Shutdown kills any process the bridge owns.
	Shutdown() error
}

// Select returns the strategy configured by mode.
func Select(mode string, oneShot *OneShot, interactive *Interactive) (Bridge, error) {
	switch mode {
	case api.ModeOneShot:
		return oneShot, nil
	case api.ModeInteractive:
		return interactive, nil
	default:
		return nil, fmt.Errorf("unknown bridge mode %q", mode)
	}
}

// Options configure both strategies.
type Options struct {
	Locator  Locator
	Models   *ModelConfig
	Sink     stream.Sink
	Log      *logging.Logger
	History  *history.Store // optional, one-shot sessions only
	Delivery string         // api.DeliveryStdin or api.DeliveryArgument
	Timeout  time.Duration  // one-shot deadline
	Dir      string         // working directory of the tool
	Env      []string       // nil inherits the environment
}

// DefaultTimeout bounds a one-shot session when Options.Timeout is zero.
const DefaultTimeout = 120 * time.Second

// drainGrace bounds how long readers may outlive the process before their
// pipes are closed under them.
const drainGrace = 5 * time.Second

// OptionsFromConfig fills the tool-related options from configuration. The
// GEMINI_BIN environment variable wins over a configured binary.
func OptionsFromConfig(cfg *config.Config) Options {
	binary := cfg.Bridge.Binary
	if env := os.Getenv(BinaryEnv); env != "" {
		binary = env
	}
	return Options{
		Locator:  Locator{Tool: cfg.Bridge.Tool, Binary: binary},
		Delivery: cfg.Bridge.PromptDelivery,
		Timeout:  cfg.Bridge.Timeout,
	}
}

func (o *Options) setDefaults() {
	if o.Log == nil {
		o.Log = logging.Discard()
	}
	if o.Sink == nil {
		o.Sink = stream.SinkFunc(func(stream.Notification) error { return nil })
	}
	if o.Models == nil {
		o.Models, _ = NewModelConfig("")
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Delivery == "" {
		o.Delivery = api.DeliveryStdin
	}
}

// publisher sends notifications for one session. Delivery failures are
// logged and otherwise ignored.
type publisher struct {
	sink      stream.Sink
	log       *logging.Logger
	sessionID string
}

func (p publisher) publish(n stream.Notification) {
	if err := p.sink.Publish(n); err != nil {
		p.log.Warn("notification delivery failed", map[string]any{
			"name":  n.Name,
			"error": err.Error(),
		})
	}
}

func (p publisher) line(msg string, ch stream.Channel) {
	p.publish(stream.Output(p.sessionID, stream.Event{Message: msg, Stream: ch}))
}

// pump reads r until EOF, routing each line and handing the result to
// handle. It runs on its own goroutine per output pipe.
func pump(r io.Reader, src stream.Channel, el *stream.EventLogger, handle func(stream.Result)) {
	skip := func(n int, err error) {
		metrics.RecordLineSkipped(string(src))
		el.Skip(src, n, err)
	}
	for line := range stream.Lines(r, skip) {
		res := stream.Route(src, line)
		el.Log(src, line, res)
		metrics.RecordLine(string(src), resultLabel(res))
		handle(res)
	}
}

func resultLabel(r stream.Result) string {
	switch {
	case r.Answer:
		return "answer"
	case r.Emit:
		return "passthrough"
	default:
		return "ignored"
	}
}

// joinReaders waits for the reader goroutines. If they are still blocked
// drainGrace after the process exited, the pipes are closed to release them.
func joinReaders(readers *sync.WaitGroup, proc *Process, log *logging.Logger) {
	joined := make(chan struct{})
	go func() {
		readers.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(drainGrace):
		log.Warn("output pipes still open after exit, closing", map[string]any{"pid": proc.Pid()})
		proc.Close()
		<-joined
	}
	proc.Close()
}
