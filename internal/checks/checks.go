// Package checks reports whether external tools are installed.
package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/clareza/clareza/internal/bridge"
	"github.com/clareza/clareza/internal/logging"
)

// ErrUnknownTool is returned for tools without a check.
var ErrUnknownTool = errors.New("unknown tool")

// AttemptTimeout bounds each check command.
const AttemptTimeout = 10 * time.Second

// Tools maps check names to display names.
var Tools = map[string]string{
	"gemini": "Gemini CLI",
	"bun":    "Bun",
}

// Result is the outcome of a check.
type Result struct {
	Name      string  `json:"name"`
	Installed bool    `json:"installed"`
	Version   *string `json:"version,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Checker runs check commands.
type Checker struct {
	SearchPath string // PATH-style list; empty means ~/.bun/bin then $PATH
	GOOS       string // empty means runtime.GOOS
	Log        *logging.Logger
}

// Check tries `tool --version` and `tool -v` directly, then through the
// platform shell. The first attempt that succeeds with output wins.
func (p Checker) Check(ctx context.Context, tool string) (Result, error) {
	name, ok := Tools[tool]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	log := p.Log
	if log == nil {
		log = logging.Discard()
	}
	log = log.Named("checks")

	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	search := p.SearchPath
	if search == "" {
		search = defaultSearchPath()
	}
	env := append(os.Environ(), "PATH="+search)

	res := Result{Name: name}
	flags := [][]string{{"--version"}, {"-v"}}

	exe, err := bridge.Locator{Tool: tool, SearchPath: search, GOOS: goos}.Locate()
	if err == nil {
		for _, args := range flags {
			r := attempt(ctx, name, env, exe, args...)
			log.Debug("check attempt", map[string]any{"tool": tool, "command": exe, "args": args, "installed": r.Installed})
			if r.Installed {
				return r, nil
			}
			res = r
		}
	} else {
		msg := err.Error()
		res.Error = &msg
	}

	shell, flag := "sh", "-c"
	if goos == "windows" {
		shell, flag = "cmd", "/C"
	}
	for _, args := range flags {
		r := attempt(ctx, name, env, shell, flag, tool+" "+args[0])
		log.Debug("check attempt", map[string]any{"tool": tool, "command": shell, "args": args, "installed": r.Installed})
		if r.Installed {
			return r, nil
		}
		if r.Error != nil {
			res.Error = r.Error
		}
	}
	return res, nil
}

func defaultSearchPath() string {
	path := os.Getenv("PATH")
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	bun := filepath.Join(home, ".bun", "bin")
	if strings.Contains(path, bun) {
		return path
	}
	return bun + string(os.PathListSeparator) + path
}

func attempt(ctx context.Context, name string, env []string, command string, args ...string) Result {
	ctx, cancel := context.WithTimeout(ctx, AttemptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())
	if out == "" && runErr == nil {
		out = errOut
	}
	if runErr == nil && out != "" {
		v := ExtractVersion(out)
		return Result{Name: name, Installed: true, Version: &v}
	}

	var msg string
	switch {
	case errOut != "":
		msg = errOut
	case runErr != nil:
		msg = runErr.Error()
	default:
		msg = "no output received"
	}
	return Result{Name: name, Error: &msg}
}

// ExtractVersion pulls a version number from tool output: a leading "v" or
// "version " is dropped, and only the first word of the first line is kept.
func ExtractVersion(output string) string {
	s := strings.TrimSpace(output)
	switch {
	case strings.HasPrefix(s, "version "):
		s = strings.TrimPrefix(s, "version ")
	case strings.HasPrefix(s, "Version "):
		s = strings.TrimPrefix(s, "Version ")
	case strings.HasPrefix(s, "v"):
		s = s[1:]
	}
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = line
	}
	s = strings.TrimRight(s, "\r")
	if word, _, ok := strings.Cut(s, " "); ok {
		s = word
	}
	return s
}
