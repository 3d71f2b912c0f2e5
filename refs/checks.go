package refs

import (
	"errors"
	"fmt"
)

// Check categories selectable from the command line.
const (
	CheckMounts = "mounts"
	CheckTasks  = "tasks"
)

// ErrNoChecks is returned when the flag combination disables every check.
var ErrNoChecks = errors.New("no checks selected")

// Options selects which reference sources a scan inspects.
type Options struct {
	CheckMounts bool
	CheckTasks  bool
}

// SelectChecks builds Options from the --check and --no-check flag
// values. The two sets are mutually exclusive; with neither given, every
// check runs.
func SelectChecks(only, exclude []string) (Options, error) {
	if len(only) > 0 && len(exclude) > 0 {
		return Options{}, errors.New("--check and --no-check are mutually exclusive")
	}
	opts := Options{CheckMounts: true, CheckTasks: true}
	if len(only) > 0 {
		opts = Options{}
		for _, name := range only {
			if err := opts.set(name, true); err != nil {
				return Options{}, err
			}
		}
	}
	for _, name := range exclude {
		if err := opts.set(name, false); err != nil {
			return Options{}, err
		}
	}
	if !opts.CheckMounts && !opts.CheckTasks {
		return Options{}, ErrNoChecks
	}
	return opts, nil
}

func (o *Options) set(name string, on bool) error {
	switch name {
	case CheckMounts:
		o.CheckMounts = on
	case CheckTasks:
		o.CheckTasks = on
	default:
		return fmt.Errorf("unknown check %q (valid: %s, %s)", name, CheckMounts, CheckTasks)
	}
	return nil
}
