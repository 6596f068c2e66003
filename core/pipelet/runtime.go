// Package pipelet executes untrusted user code fragments in an isolated
// subprocess. A fragment defines a single entry function run(message, context)
// and communicates exclusively over JSON on stdin/stdout; stderr is captured
// as debug output.
package pipelet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single execution unless overridden.
const DefaultTimeout = 1500 * time.Millisecond

// DefaultInterpreter runs fragments in isolated mode so the sandbox ignores
// user site-packages and environment hooks.
const DefaultInterpreter = "python3"

const wrapperTemplate = `import json, sys
inp = json.loads(sys.stdin.read() or "{}")
message = inp.get("message")
context = inp.get("context", {})
%s
out = run(message, context)
print(json.dumps({"result": out}))
`

// Runner executes one code fragment against a message/context pair. The
// returned tuple is (result, debug output, typed error); exactly one of
// result and error is meaningful.
type Runner interface {
	Run(ctx context.Context, code string, message, execCtx map[string]any, timeout time.Duration) (any, string, *Error)
}

// SubprocessRunner is the production Runner. Every call spawns a fresh
// interpreter process with no shared state; the process is killed once the
// timeout elapses.
type SubprocessRunner struct {
	Interpreter string
}

// NewSubprocessRunner returns a runner using the given interpreter binary,
// falling back to DefaultInterpreter when empty.
func NewSubprocessRunner(interpreter string) *SubprocessRunner {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &SubprocessRunner{Interpreter: interpreter}
}

type sandboxInput struct {
	Message map[string]any `json:"message"`
	Context map[string]any `json:"context"`
}

type sandboxOutput struct {
	Result any `json:"result"`
}

// Run executes the fragment. The temp wrapper file is removed on every path,
// including timeout and kill.
func (r *SubprocessRunner) Run(ctx context.Context, code string, message, execCtx map[string]any, timeout time.Duration) (any, string, *Error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if message == nil {
		message = map[string]any{}
	}
	if execCtx == nil {
		execCtx = map[string]any{}
	}

	wrapperPath, err := writeWrapper(code)
	if err != nil {
		return nil, "", &Error{Type: ErrTypeConfiguration, Message: fmt.Sprintf("prepare sandbox: %v", err)}
	}
	defer func() { _ = os.Remove(wrapperPath) }()

	payload, err := json.Marshal(sandboxInput{Message: message, Context: execCtx})
	if err != nil {
		return nil, "", &Error{Type: ErrTypeProtocol, Message: fmt.Sprintf("encode sandbox input: %v", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, "-I", wrapperPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Do not wait for lingering pipe readers once the process is killed.
	cmd.WaitDelay = 100 * time.Millisecond

	runErr := cmd.Run()
	debug := stderr.String()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		// Partial output from a killed process is discarded, not parsed.
		return nil, debug, &Error{
			Type:    ErrTypeTimeout,
			Message: fmt.Sprintf("Execution exceeded %g seconds", timeout.Seconds()),
		}
	}
	if runErr != nil {
		return nil, debug, classifyError(debug)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, debug, nil
	}
	var out sandboxOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, debug, &Error{Type: ErrTypeProtocol, Message: "Invalid JSON output from pipelet"}
	}
	return out.Result, debug, nil
}

func writeWrapper(code string) (string, error) {
	f, err := os.CreateTemp("", "pipelet-*.py")
	if err != nil {
		return "", err
	}
	source := fmt.Sprintf(wrapperTemplate, code)
	if _, werr := f.WriteString(source); werr != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", werr
	}
	if cerr := f.Close(); cerr != nil {
		_ = os.Remove(f.Name())
		return "", cerr
	}
	return f.Name(), nil
}
