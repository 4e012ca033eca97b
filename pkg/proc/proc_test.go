package proc_test

import (
	"io"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/runfold/runp/pkg/proc"
)

// fakeProcess is a scripted process handle for exercising the
// supervision core without spawning real children.
type fakeProcess struct {
	proc.Status

	argv    []string
	machine string
	enc     encoding.Encoding

	mu          sync.Mutex
	stdout      [][]byte
	stderr      [][]byte
	exited      bool
	exitOnEmpty bool
	code        int
	waitErr     error
	killErr     error

	commStdout []byte
	commStderr []byte

	killCalls  int
	closeCalls int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		argv:    []string{"fake", "cmd"},
		machine: "testhost",
	}
}

func (f *fakeProcess) Argv() []string              { return f.argv }
func (f *fakeProcess) Machine() string             { return f.machine }
func (f *fakeProcess) Encoding() encoding.Encoding { return f.enc }

func (f *fakeProcess) Poll() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exitOnEmpty && len(f.stdout) == 0 && len(f.stderr) == 0 {
		f.exited = true
	}
	if f.exited {
		return f.code, true
	}
	return 0, false
}

func (f *fakeProcess) Wait() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
	return f.code, f.waitErr
}

func (f *fakeProcess) Communicate() ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
	return f.commStdout, f.commStderr, nil
}

func (f *fakeProcess) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killCalls++
	if f.killErr != nil {
		return f.killErr
	}
	f.exited = true
	f.code = -1
	return nil
}

func (f *fakeProcess) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeProcess) Select(stdout, stderr bool, timeout time.Duration) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	readyOut := stdout && len(f.stdout) > 0
	readyErr := stderr && len(f.stderr) > 0
	return readyOut, readyErr, nil
}

func (f *fakeProcess) ReadLine(s proc.Stream, limit int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := &f.stdout
	if s == proc.Stderr {
		queue = &f.stderr
	}
	if len(*queue) == 0 {
		return nil, io.EOF
	}
	line := (*queue)[0]
	*queue = (*queue)[1:]
	return line, nil
}

func (f *fakeProcess) kills() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killCalls
}

func (f *fakeProcess) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// isolatedWatchdog returns a started watchdog that is torn down with
// the test, so tests do not share the process-wide instance.
func isolatedWatchdog(stop func(func())) *proc.Watchdog {
	watchdog, _ := proc.NewWatchdog()
	watchdog.Start()
	stop(watchdog.Stop)
	return watchdog
}
