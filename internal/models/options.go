package models

import (
	"fmt"
	"net/url"
	"strconv"
)

// ComputeOptions are the per-submission flags recognized by the gateway.
// They are carried verbatim to every leaf of the planned task tree;
// adapters that do not support an option ignore it.
type ComputeOptions struct {
	CollectStdout bool   `json:"collect_stdout"`
	CollectFiles  bool   `json:"collect_files"`
	CollectWFN    bool   `json:"collect_wfn"`
	RmScratchDir  bool   `json:"rm_scratch_dir"`
	PropagateWFN  bool   `json:"propagate_wfn"`
	Queue         string `json:"queue,omitempty"`
}

// DefaultComputeOptions returns the documented defaults.
func DefaultComputeOptions() ComputeOptions {
	return ComputeOptions{
		CollectStdout: true,
		RmScratchDir:  true,
	}
}

// Query parameters recognized on the compute endpoint besides the
// options themselves.
var reservedQueryKeys = map[string]struct{}{
	"program": {},
}

var boolOptionKeys = map[string]struct{}{
	"collect_stdout": {},
	"collect_files":  {},
	"collect_wfn":    {},
	"rm_scratch_dir": {},
	"propagate_wfn":  {},
}

// OptionsFromQuery parses compute options from the submission query
// string. Unrecognized keys are rejected rather than ignored so typos
// never silently change behavior.
func OptionsFromQuery(q url.Values) (ComputeOptions, error) {
	opts := DefaultComputeOptions()
	for key, vals := range q {
		if _, ok := reservedQueryKeys[key]; ok {
			continue
		}
		if key == "queue" {
			opts.Queue = vals[0]
			continue
		}
		if _, ok := boolOptionKeys[key]; !ok {
			return opts, fmt.Errorf("%w: %q", ErrUnknownOption, key)
		}
		b, err := strconv.ParseBool(vals[0])
		if err != nil {
			return opts, fmt.Errorf("%w: %q is not a boolean", ErrUnknownOption, key)
		}
		switch key {
		case "collect_stdout":
			opts.CollectStdout = b
		case "collect_files":
			opts.CollectFiles = b
		case "collect_wfn":
			opts.CollectWFN = b
		case "rm_scratch_dir":
			opts.RmScratchDir = b
		case "propagate_wfn":
			opts.PropagateWFN = b
		}
	}
	return opts, nil
}
