package proc

// Run waits for the process to terminate, draining both output streams
// to completion, and verifies its exit code. The overall timeout, if
// any, is registered with the watchdog before waiting. On success it
// returns the exit code and the captured, decoded output.
func Run(p Process, options ...Option) (*Result, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	opts.watchdog().Register(p, opts.Timeout)

	stdout, stderr, err := p.Communicate()
	if err != nil {
		return nil, err
	}
	if err := p.Close(); err != nil {
		opts.Logger.Debug().Err(err).Msg("Failed to close process handle")
	}

	return classify(p, opts, decodeOutput(p, stdout), decodeOutput(p, stderr))
}

// decodeOutput decodes a captured output blob with the process
// encoding, if one is configured. Malformed bytes are tolerated by
// falling back to the raw content rather than failing.
func decodeOutput(p Process, raw []byte) string {
	enc := p.Encoding()
	if enc == nil {
		return string(raw)
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// classify maps the final state of a process to a success or a typed
// failure. A killed process's exit code is meaningless, so the
// timed-out flag is checked before the exit code comparison.
func classify(p Process, opts *Options, stdout, stderr string) (*Result, error) {
	code, _ := p.Poll()
	result := &Result{
		Retcode: code,
		Stdout:  stdout,
		Stderr:  stderr,
	}

	if p.TimedOut() {
		err := &TimeoutError{
			Argv:    p.Argv(),
			Machine: p.Machine(),
		}
		if opts.OnFail != nil {
			opts.OnFail(p, result, err)
		}
		return nil, err
	}

	if opts.Expect != nil && !acceptable(opts.Expect, code) {
		err := &ExecutionError{
			Argv:    p.Argv(),
			Retcode: code,
			Stdout:  stdout,
			Stderr:  stderr,
			Machine: p.Machine(),
		}
		if opts.OnFail != nil {
			opts.OnFail(p, result, err)
		}
		return nil, err
	}

	if opts.OnDone != nil {
		opts.OnDone(p, result)
	}
	return result, nil
}

func acceptable(expect []int, code int) bool {
	for _, c := range expect {
		if c == code {
			return true
		}
	}
	return false
}
