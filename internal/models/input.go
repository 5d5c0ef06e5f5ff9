package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// CalcType names the requested calculation.
type CalcType string

const (
	CalcEnergy       CalcType = "energy"
	CalcGradient     CalcType = "gradient"
	CalcHessian      CalcType = "hessian"
	CalcOptimization CalcType = "optimization"
	CalcProperties   CalcType = "properties"
)

// InputShape distinguishes the three accepted input documents.
type InputShape string

const (
	ShapeProgramInput     InputShape = "ProgramInput"
	ShapeFileInput        InputShape = "FileInput"
	ShapeDualProgramInput InputShape = "DualProgramInput"
)

// Structure is the molecular structure. Geometry is a flat list of
// cartesian coordinates, three per atom.
type Structure struct {
	Symbols      []string       `json:"symbols"`
	Geometry     []float64      `json:"geometry"`
	Charge       *int           `json:"charge,omitempty"`
	Multiplicity *int           `json:"multiplicity,omitempty"`
	Identifiers  map[string]any `json:"identifiers,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
}

// NumAtoms returns the atom count.
func (s *Structure) NumAtoms() int { return len(s.Symbols) }

// Model is the level of theory.
type Model struct {
	Method string `json:"method"`
	Basis  string `json:"basis,omitempty"`
}

// SubprogramArgs carries the nested program settings of a
// DualProgramInput.
type SubprogramArgs struct {
	Model    *Model         `json:"model,omitempty"`
	Keywords map[string]any `json:"keywords,omitempty"`
	Files    map[string][]byte `json:"files,omitempty"`
}

// Input is the superset of the three accepted document shapes. The
// chemistry payload is otherwise opaque to the gateway; only the fields
// the planner inspects are typed. Binary file payloads ride through as
// byte blobs ([]byte marshals to base64 natively on the wire).
type Input struct {
	Calctype       CalcType          `json:"calctype,omitempty"`
	Structure      *Structure        `json:"structure,omitempty"`
	Model          *Model            `json:"model,omitempty"`
	Keywords       map[string]any    `json:"keywords,omitempty"`
	Files          map[string][]byte `json:"files,omitempty"`
	Cmdline        []string          `json:"cmdline,omitempty"`
	Subprogram     string            `json:"subprogram,omitempty"`
	SubprogramArgs *SubprogramArgs   `json:"subprogram_args,omitempty"`
	Extras         map[string]any    `json:"extras,omitempty"`
}

// Shape infers the document shape from the populated fields.
func (in *Input) Shape() InputShape {
	switch {
	case in.Subprogram != "" || in.SubprogramArgs != nil:
		return ShapeDualProgramInput
	case in.Structure == nil && len(in.Files) > 0:
		return ShapeFileInput
	default:
		return ShapeProgramInput
	}
}

// Validate checks the structural requirements the planner relies on.
func (in *Input) Validate() error {
	switch in.Shape() {
	case ShapeFileInput:
		if len(in.Files) == 0 {
			return fmt.Errorf("%w: file input carries no files", ErrInvalidInput)
		}
	case ShapeDualProgramInput:
		if in.Subprogram == "" {
			return fmt.Errorf("%w: dual-program input requires a subprogram", ErrInvalidInput)
		}
		fallthrough
	default:
		if in.Structure == nil {
			return fmt.Errorf("%w: missing structure", ErrInvalidInput)
		}
		if in.Calctype == "" {
			return fmt.Errorf("%w: missing calctype", ErrInvalidInput)
		}
		if len(in.Structure.Geometry) != 3*in.Structure.NumAtoms() {
			return fmt.Errorf("%w: geometry length %d does not match %d atoms",
				ErrInvalidInput, len(in.Structure.Geometry), in.Structure.NumAtoms())
		}
	}
	return nil
}

// DecodeInputs parses a submission body into one or more inputs.
// A leading '[' selects the batch form; an empty list is rejected.
// Unknown fields anywhere in the document are rejected.
func DecodeInputs(r io.Reader) (inputs []Input, batch bool, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}

	if trimmed[0] == '[' {
		if err := strictUnmarshal(trimmed, &inputs); err != nil {
			return nil, true, err
		}
		if len(inputs) == 0 {
			return nil, true, fmt.Errorf("%w: batch contains no inputs", ErrInvalidInput)
		}
		batch = true
	} else {
		var single Input
		if err := strictUnmarshal(trimmed, &single); err != nil {
			return nil, false, err
		}
		inputs = []Input{single}
	}

	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, batch, err
		}
	}
	return inputs, batch, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after document", ErrInvalidInput)
	}
	return nil
}
