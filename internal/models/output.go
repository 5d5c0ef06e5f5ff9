package models

import "encoding/json"

// Outputs are opaque documents produced by workers. The gateway only
// ever inspects the success flag; everything else passes through
// verbatim, including the structured program_output a worker attaches
// when it raised.
type outputProbe struct {
	Success bool `json:"success"`
}

// OutputSuccess reports the success flag of a raw worker output.
// Malformed or empty outputs count as failures.
func OutputSuccess(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var p outputProbe
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	return p.Success
}
