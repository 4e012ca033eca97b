package ops

import (
	"errors"
	"fmt"

	"github.com/runfold/runp/pkg/proc"
)

// Run executes the command on the configured machine, waits for it to
// terminate and writes the captured output. It returns the exit code
// to propagate to the shell.
func Run(argv []string, options ...Option) (int, error) {
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

	result, err := proc.Run(p, procOptions...)
	if err != nil {
		var execErr *proc.ExecutionError
		if errors.As(err, &execErr) {
			fmt.Fprint(opts.Stdout, execErr.Stdout)
			fmt.Fprint(opts.Stderr, execErr.Stderr)
			return execErr.Retcode, err
		}
		return 1, err
	}

	fmt.Fprint(opts.Stdout, result.Stdout)
	fmt.Fprint(opts.Stderr, result.Stderr)

	return result.Retcode, nil
}
