package execx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/runfold/runp/pkg/execx"
	"github.com/runfold/runp/pkg/proc"
)

func spawnShell(t *testing.T, script string, options ...execx.Option) *execx.Process {
	t.Helper()

	p, err := execx.Spawn("/bin/sh", []string{"-c", script}, options...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func testWatchdog(t *testing.T) *proc.Watchdog {
	t.Helper()

	watchdog, err := proc.NewWatchdog()
	require.NoError(t, err)
	watchdog.Start()
	t.Cleanup(watchdog.Stop)
	return watchdog
}

func TestRunCapturesOutput(t *testing.T) {
	p := spawnShell(t, "echo hello; echo oops 1>&2")

	result, err := proc.Run(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Retcode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestRunSilentSuccess(t *testing.T) {
	p := spawnShell(t, "exit 0")

	result, err := proc.Run(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)
	assert.Equal(t, &proc.Result{Retcode: 0, Stdout: "", Stderr: ""}, result)
}

func TestRunUnexpectedExitCode(t *testing.T) {
	p := spawnShell(t, "exit 2")

	_, err := proc.Run(p, proc.WithWatchdog(testWatchdog(t)))

	var execErr *proc.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.Retcode)
	assert.Equal(t, "local", execErr.Machine)
	assert.Equal(t, []string{"/bin/sh", "-c", "exit 2"}, execErr.Argv)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	p := spawnShell(t, "sleep 10")

	start := time.Now()
	_, err := proc.Run(p,
		proc.WithWatchdog(testWatchdog(t)),
		proc.WithTimeout(time.Second),
	)
	elapsed := time.Since(start)

	var timeoutErr *proc.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, elapsed, 5*time.Second, "the kill must not wait for the sleep to finish")

	_, exited := p.Poll()
	assert.True(t, exited, "the process must no longer be running")
}

func TestRunDecodesOutput(t *testing.T) {
	p := spawnShell(t, "printf 'hi\\n'", execx.WithEncoding(unicode.UTF8))

	result, err := proc.Run(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Stdout)
}

func TestCommunicateOneSidedChatter(t *testing.T) {
	p := spawnShell(t, "seq 1 100000")

	stdout, stderr, err := p.Communicate()
	require.NoError(t, err)

	assert.Empty(t, stderr)
	assert.True(t, strings.HasPrefix(string(stdout), "1\n2\n"))
	assert.True(t, strings.HasSuffix(string(stdout), "100000\n"))
}

func TestCommunicateFeedsStdin(t *testing.T) {
	p := spawnShell(t, "cat")

	_, err := p.Stdin().Write([]byte("ping\n"))
	require.NoError(t, err)

	stdout, _, err := p.Communicate()
	require.NoError(t, err)
	assert.Equal(t, "ping\n", string(stdout))
}

func TestCloseIsIdempotent(t *testing.T) {
	p := spawnShell(t, "exit 0")

	_, err := p.Wait()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestKillTerminatesProcess(t *testing.T) {
	p := spawnShell(t, "sleep 10")

	require.NoError(t, p.Kill())

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, code, "a signalled process reports no exit code")
}

func TestPollDoesNotBlock(t *testing.T) {
	p := spawnShell(t, "sleep 1")

	_, exited := p.Poll()
	assert.False(t, exited)

	require.NoError(t, p.Kill())
	require.Eventually(t, func() bool {
		_, exited := p.Poll()
		return exited
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWaitIsIdempotent(t *testing.T) {
	p := spawnShell(t, "exit 3")

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	code, err = p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestIterLinesArrivalOrderAcrossStreams(t *testing.T) {
	p := spawnShell(t, "echo a; sleep 0.3; echo b 1>&2")

	lines, err := proc.IterLines(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)
	defer lines.Close()

	var collected []proc.Line
	for lines.Next() {
		collected = append(collected, lines.Line())
	}
	require.NoError(t, lines.Err())

	require.Len(t, collected, 2)
	assert.Equal(t, proc.Line{Stream: proc.Stdout, Text: "a\n"}, collected[0])
	assert.Equal(t, proc.Line{Stream: proc.Stderr, Text: "b\n"}, collected[1])
}

func TestIterLinesTrimsWithEncoding(t *testing.T) {
	p := spawnShell(t, "echo trimmed", execx.WithEncoding(unicode.UTF8))

	lines, err := proc.IterLines(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)
	defer lines.Close()

	require.True(t, lines.Next())
	assert.Equal(t, "trimmed", lines.Line().Text)
}

func TestIterLinesLineTimeout(t *testing.T) {
	p := spawnShell(t, "sleep 1; echo late")

	lines, err := proc.IterLines(p,
		proc.WithWatchdog(testWatchdog(t)),
		proc.WithLineTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)
	defer lines.Close()

	start := time.Now()
	assert.False(t, lines.Next())

	var lineErr *proc.LineTimeoutError
	require.ErrorAs(t, lines.Err(), &lineErr)
	assert.Less(t, time.Since(start), 800*time.Millisecond,
		"the line timeout fires before the process completes")
}

func TestIterLinesAbandonReleasesHandle(t *testing.T) {
	p := spawnShell(t, "echo first; sleep 5; echo second")

	lines, err := proc.IterLines(p, proc.WithWatchdog(testWatchdog(t)))
	require.NoError(t, err)

	require.True(t, lines.Next())
	assert.Equal(t, "first\n", lines.Line().Text)

	// Abandon iteration after a single record.
	require.NoError(t, lines.Close())

	// The pipes are gone, so a subsequent close must still be safe.
	require.NoError(t, p.Close())

	// Reap the abandoned child so it does not outlive the test.
	require.NoError(t, p.Kill())
}

func TestIterLinesBoundedLineSize(t *testing.T) {
	p := spawnShell(t, "printf 'abcdefgh\\n'")

	lines, err := proc.IterLines(p,
		proc.WithWatchdog(testWatchdog(t)),
		proc.WithLineSize(4),
	)
	require.NoError(t, err)
	defer lines.Close()

	require.True(t, lines.Next())
	assert.Equal(t, "abcd", lines.Line().Text)
	require.True(t, lines.Next())
	assert.Equal(t, "efgh", lines.Line().Text)
}

func TestSpawnUnknownBinary(t *testing.T) {
	_, err := execx.Spawn("/nonexistent/binary", nil)
	require.Error(t, err)
}
