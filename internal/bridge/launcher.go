package bridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/clareza/clareza/internal/api"
)

// StdinMode selects what happens to the child's standard input.
type StdinMode int

const (
	// StdinClose writes SpawnRequest.Input (if any) and closes the pipe.
	StdinClose StdinMode = iota
	// StdinKeepOpen hands the pipe to the caller as Process.Stdin.
	StdinKeepOpen
)

// SpawnRequest describes a process launch.
type SpawnRequest struct {
	Path  string
	Args  []string
	Dir   string
	Env   []string // nil inherits the current environment
	Stdin StdinMode
	Input string // written before close when Stdin is StdinClose
	GOOS  string // empty means runtime.GOOS
}

// Process is a running tool process with its output pipes.
//
// Stdout and Stderr are plain OS pipes owned by the bridge, so waiting for
// exit never closes them under a reader. They reach EOF once every holder of
// the write end (the process group) has exited.
type Process struct {
	Stdin  io.WriteCloser // nil unless StdinKeepOpen
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	waitErr  error
	inputErr error
	killed   bool
	reaping  bool // set once the child has exited, before it is reaped
}

// needsShell reports whether path is a batch file, which windows can only
// run through cmd.exe.
func needsShell(goos, path string) bool {
	if goos != "windows" {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cmd", ".bat":
		return true
	}
	return false
}

// commandLine applies the batch-file wrapper: on windows .cmd and .bat files
// run as `cmd /C <path> args...`. Arguments always stay a vector.
func commandLine(goos, path string, args []string) (string, []string) {
	if needsShell(goos, path) {
		return "cmd", append([]string{"/C", path}, args...)
	}
	return path, args
}

// DeliveryFor returns the prompt delivery to use for the executable at path.
// cmd.exe re-parses its command line with its own quoting rules, so a batch
// file never receives the prompt as an argument.
func DeliveryFor(goos, path, delivery string) string {
	if needsShell(goos, path) {
		return api.DeliveryStdin
	}
	return delivery
}

// Spawn starts the process described by req.
func Spawn(req SpawnRequest) (*Process, error) {
	goos := req.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	name, args := commandLine(goos, req.Path, req.Args)

	cmd := exec.Command(name, args...)
	cmd.Dir = req.Dir
	if req.Env != nil {
		cmd.Env = req.Env
	}
	setupProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		for _, f := range []*os.File{outR, outW, errR, errW} {
			f.Close()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, req.Path, err)
	}
	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()

	p := &Process{
		Stdout: outR,
		Stderr: errR,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	if req.Stdin == StdinKeepOpen {
		p.Stdin = stdin
	} else {
		go p.feed(stdin, req.Input)
	}
	go p.wait()
	return p, nil
}

func (p *Process) feed(stdin io.WriteCloser, input string) {
	var err error
	if input != "" {
		_, err = io.WriteString(stdin, input)
	}
	if cerr := stdin.Close(); err == nil && cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = cerr
	}
	if err != nil {
		p.mu.Lock()
		p.inputErr = err
		p.mu.Unlock()
	}
}

func (p *Process) wait() {
	// Kill holds mu while signalling, so the pid cannot be reaped and
	// reused underneath it.
	if waitExited(p.cmd.Process.Pid) {
		p.mu.Lock()
		p.reaping = true
		p.mu.Unlock()
	}

	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.reaping = true
	p.mu.Unlock()
	close(p.done)
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// InputErr reports a failure writing the prompt to stdin.
func (p *Process) InputErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputErr
}

// ExitCode returns the exit status, or -1 if the process is still running or
// was terminated by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Killed reports whether Kill reached a live process.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Kill forcefully terminates the process and its group. Killing an exited
// process is a no-op.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaping {
		return nil
	}
	p.killed = true
	return killProcessGroup(p.cmd)
}

// Close releases the read ends of the output pipes.
func (p *Process) Close() {
	p.Stdout.Close()
	p.Stderr.Close()
}
