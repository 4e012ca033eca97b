package proc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/runfold/runp/pkg/proc"
)

func TestRunSuccessWithoutOutput(t *testing.T) {
	p := newFakeProcess()

	result, err := proc.Run(p, proc.WithWatchdog(isolatedWatchdog(t.Cleanup)))
	require.NoError(t, err)

	assert.Equal(t, &proc.Result{Retcode: 0, Stdout: "", Stderr: ""}, result)
	assert.Equal(t, 1, p.closes(), "the handle is released after completion")
}

func TestRunUnexpectedExitCode(t *testing.T) {
	p := newFakeProcess()
	p.code = 2
	p.commStdout = []byte("partial output\n")
	p.commStderr = []byte("it broke\n")

	result, err := proc.Run(p, proc.WithWatchdog(isolatedWatchdog(t.Cleanup)))
	assert.Nil(t, result)

	var execErr *proc.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.Retcode)
	assert.Equal(t, []string{"fake", "cmd"}, execErr.Argv)
	assert.Equal(t, "partial output\n", execErr.Stdout)
	assert.Equal(t, "it broke\n", execErr.Stderr)
	assert.Equal(t, "testhost", execErr.Machine)
}

func TestRunExpectedCodeSet(t *testing.T) {
	p := newFakeProcess()
	p.code = 2

	result, err := proc.Run(p,
		proc.WithWatchdog(isolatedWatchdog(t.Cleanup)),
		proc.WithExpect(0, 2),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Retcode)
}

func TestRunAnyExitCode(t *testing.T) {
	p := newFakeProcess()
	p.code = 7

	result, err := proc.Run(p,
		proc.WithWatchdog(isolatedWatchdog(t.Cleanup)),
		proc.WithAnyExitCode(),
	)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Retcode)
}

func TestRunTimeoutBeatsExitCodeCheck(t *testing.T) {
	p := newFakeProcess()
	p.code = 0
	p.MarkTimedOut()

	_, err := proc.Run(p, proc.WithWatchdog(isolatedWatchdog(t.Cleanup)))

	// A killed process's exit code is meaningless, so the timeout
	// must win even when the code would have been acceptable.
	var timeoutErr *proc.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, []string{"fake", "cmd"}, timeoutErr.Argv)
	assert.Equal(t, "testhost", timeoutErr.Machine)
}

func TestRunKillsProcessAfterDeadline(t *testing.T) {
	p := newFakeProcess()
	p.exited = false

	watchdog := isolatedWatchdog(t.Cleanup)
	watchdog.Register(p, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return p.kills() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := proc.Run(p, proc.WithWatchdog(watchdog))
	var timeoutErr *proc.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestRunDecodesOutput(t *testing.T) {
	p := newFakeProcess()
	p.enc = charmap.ISO8859_1
	p.commStdout = []byte{0xe9, 0x0a}

	result, err := proc.Run(p, proc.WithWatchdog(isolatedWatchdog(t.Cleanup)))
	require.NoError(t, err)
	assert.Equal(t, "é\n", result.Stdout)
}

func TestRunCallbacks(t *testing.T) {
	t.Run("on done", func(t *testing.T) {
		p := newFakeProcess()

		var done *proc.Result
		_, err := proc.Run(p,
			proc.WithWatchdog(isolatedWatchdog(t.Cleanup)),
			proc.WithOnDone(func(_ proc.Process, result *proc.Result) { done = result }),
			proc.WithOnFail(func(proc.Process, *proc.Result, error) {
				t.Fatal("on-fail must not fire on success")
			}),
		)
		require.NoError(t, err)
		require.NotNil(t, done)
		assert.Equal(t, 0, done.Retcode)
	})

	t.Run("on fail", func(t *testing.T) {
		p := newFakeProcess()
		p.code = 3

		var failed error
		_, err := proc.Run(p,
			proc.WithWatchdog(isolatedWatchdog(t.Cleanup)),
			proc.WithOnFail(func(_ proc.Process, _ *proc.Result, cause error) { failed = cause }),
		)
		require.Error(t, err)
		assert.Equal(t, err, failed, "the callback sees the error before it propagates")
	})
}

func TestExpectationMatrix(t *testing.T) {
	tests := []struct {
		name    string
		options []proc.Option
		code    int
		ok      bool
	}{
		{name: "default accepts zero", code: 0, ok: true},
		{name: "default rejects nonzero", code: 1, ok: false},
		{name: "single expected code", options: []proc.Option{proc.WithExpect(5)}, code: 5, ok: true},
		{name: "single expected code mismatch", options: []proc.Option{proc.WithExpect(5)}, code: 0, ok: false},
		{name: "set membership", options: []proc.Option{proc.WithExpect(1, 2, 3)}, code: 2, ok: true},
		{name: "set non-membership", options: []proc.Option{proc.WithExpect(1, 2, 3)}, code: 4, ok: false},
		{name: "no verification", options: []proc.Option{proc.WithAnyExitCode()}, code: 42, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProcess()
			p.code = tt.code

			options := append([]proc.Option{proc.WithWatchdog(isolatedWatchdog(t.Cleanup))}, tt.options...)
			result, err := proc.Run(p, options...)

			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.code, result.Retcode)
				return
			}

			var execErr *proc.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.code, execErr.Retcode)
		})
	}
}
