package pipelet

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(DefaultInterpreter); err != nil {
		t.Skipf("%s not available: %v", DefaultInterpreter, err)
	}
}

func TestRunReturnsReplacementMessage(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	code := "def run(message, context):\n    message[\"a\"] = 1\n    return message"
	result, debug, perr := r.Run(context.Background(), code, map[string]any{"x": float64(0)}, nil, 5*time.Second)
	require.Nil(t, perr)
	assert.Empty(t, debug)
	require.IsType(t, map[string]any{}, result)
	m := result.(map[string]any)
	assert.Equal(t, float64(0), m["x"])
	assert.Equal(t, float64(1), m["a"])
}

func TestRunIdentityFragment(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	in := map[string]any{"start": true, "n": float64(3)}
	result, _, perr := r.Run(context.Background(), "def run(message, context):\n    return message", in, nil, 5*time.Second)
	require.Nil(t, perr)
	assert.Equal(t, in, result)
}

func TestRunContextIsVisible(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	code := "def run(message, context):\n    return {\"cp\": context[\"cp_id\"]}"
	result, _, perr := r.Run(context.Background(), code, map[string]any{}, map[string]any{"cp_id": "CP_1"}, 5*time.Second)
	require.Nil(t, perr)
	assert.Equal(t, map[string]any{"cp": "CP_1"}, result)
}

func TestRunTimeout(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	code := "import time\ndef run(message, context):\n    time.sleep(5)\n    return message"
	start := time.Now()
	result, _, perr := r.Run(context.Background(), code, map[string]any{}, nil, time.Second)
	elapsed := time.Since(start)
	require.NotNil(t, perr)
	assert.Equal(t, ErrTypeTimeout, perr.Type)
	assert.Equal(t, "Execution exceeded 1 seconds", perr.Message)
	assert.Nil(t, result)
	assert.Less(t, elapsed, 3*time.Second, "caller must not block past the timeout")
}

func TestRunSyntaxError(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	result, debug, perr := r.Run(context.Background(), "def run(message context):\n    return message", map[string]any{}, nil, 5*time.Second)
	require.NotNil(t, perr)
	assert.Equal(t, ErrTypeSyntax, perr.Type)
	assert.Contains(t, debug, "SyntaxError")
	assert.Nil(t, result)
}

func TestRunException(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	code := "def run(message, context):\n    raise ValueError(\"boom\")"
	result, debug, perr := r.Run(context.Background(), code, map[string]any{}, nil, 5*time.Second)
	require.NotNil(t, perr)
	assert.Equal(t, ErrTypeException, perr.Type)
	assert.Contains(t, perr.Message, "boom")
	assert.Contains(t, debug, "ValueError")
	assert.Nil(t, result)
}

func TestRunInvalidJSONOutput(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	// Stray stdout corrupts the single-JSON-object output channel.
	code := "print(\"junk\")\ndef run(message, context):\n    return message"
	result, _, perr := r.Run(context.Background(), code, map[string]any{}, nil, 5*time.Second)
	require.NotNil(t, perr)
	assert.Equal(t, ErrTypeProtocol, perr.Type)
	assert.Equal(t, "Invalid JSON output from pipelet", perr.Message)
	assert.Nil(t, result)
}

func TestRunScalarResult(t *testing.T) {
	requirePython(t)
	r := NewSubprocessRunner("")
	result, _, perr := r.Run(context.Background(), "def run(message, context):\n    return 5", map[string]any{}, nil, 5*time.Second)
	require.Nil(t, perr)
	assert.Equal(t, float64(5), result)
}

func TestClassifyError(t *testing.T) {
	err := classifyError("Traceback...\n  File x\nValueError: nope\n")
	assert.Equal(t, ErrTypeException, err.Type)
	assert.Equal(t, "ValueError: nope", err.Message)

	err = classifyError("  File x, line 1\nSyntaxError: invalid syntax\n")
	assert.Equal(t, ErrTypeSyntax, err.Type)

	err = classifyError("")
	assert.Equal(t, ErrTypeException, err.Type)
	assert.Equal(t, "Pipelet execution failed", err.Message)
}
