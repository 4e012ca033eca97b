package ops

import (
	"errors"
	"fmt"

	"github.com/runfold/runp/pkg/proc"
)

// Stream executes the command on the configured machine and writes
// its output line by line as it arrives, interleaving stdout and
// stderr in arrival order. It returns the exit code to propagate to
// the shell.
func Stream(argv []string, options ...Option) (int, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return 1, err
	}

	config, err := loadOrDefault(opts.ConfigPath)
	if err != nil {
		return 1, err
	}

	procOptions, err := supervision(config, opts)
	if err != nil {
		return 1, err
	}

	p, closer, err := spawn(config, argv, opts)
	if err != nil {
		return 1, err
	}
	if closer != nil {
		defer closer()
	}

	lines, err := proc.IterLines(p, procOptions...)
	if err != nil {
		return 1, err
	}
	defer lines.Close()

	for lines.Next() {
		line := lines.Line()
		if line.Stream == proc.Stderr {
			fmt.Fprintln(opts.Stderr, line.Text)
			continue
		}
		fmt.Fprintln(opts.Stdout, line.Text)
	}

	if err := lines.Err(); err != nil {
		var execErr *proc.ExecutionError
		if errors.As(err, &execErr) {
			return execErr.Retcode, err
		}
		return 1, err
	}

	return lines.Result().Retcode, nil
}
