// Package planner chooses the task shape for a submission: a single
// leaf, a group fan-out, or a chord implementing a parallelised
// finite-difference algorithm. Planning is pure; broker ids are
// assigned later when the plan is materialized.
package planner

import (
	"encoding/json"
	"fmt"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/models"
)

// Task names understood by the worker fleet.
const (
	TaskCompute           = "compute"
	TaskAssembleHessian   = "assemble_hessian"
	TaskFrequencyAnalysis = "frequency_analysis"
)

// DefaultDisplacement is the finite-difference step (bohr) used for
// gradient displacements when the input does not override it via the
// "dh" keyword.
const DefaultDisplacement = 5.0e-3

// LeafSpec describes one worker invocation before it has an id.
type LeafSpec struct {
	Task    string
	Program string
	Input   json.RawMessage
	Options models.ComputeOptions
}

// Plan is the shape chosen for a submission.
type Plan struct {
	Kind    dag.Kind
	Leaves  []LeafSpec
	Reducer *LeafSpec
	Queue   string
}

// New plans a submission. batch distinguishes a one-element JSON array
// from a bare document: a batch always yields a group, even of one.
func New(program models.Program, inputs []models.Input, batch bool, opts models.ComputeOptions, maxBatch int) (*Plan, error) {
	if batch {
		if len(inputs) > maxBatch {
			return nil, fmt.Errorf("%w: %d inputs exceeds the limit of %d",
				models.ErrBatchTooLarge, len(inputs), maxBatch)
		}
		if program == models.ProgramBigChem {
			// A group holds plain leaves; the chord a bigchem element
			// expands to cannot nest inside one.
			return nil, fmt.Errorf("%w: bigchem algorithms cannot be submitted in a batch",
				models.ErrUnsupportedCalcType)
		}
		leaves := make([]LeafSpec, 0, len(inputs))
		for i := range inputs {
			leaf, err := singleLeaf(program, &inputs[i], opts)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, *leaf)
		}
		return &Plan{Kind: dag.KindGroup, Leaves: leaves, Queue: opts.Queue}, nil
	}

	if program == models.ProgramBigChem {
		return planChord(&inputs[0], opts)
	}

	leaf, err := singleLeaf(program, &inputs[0], opts)
	if err != nil {
		return nil, err
	}
	return &Plan{Kind: dag.KindLeaf, Leaves: []LeafSpec{*leaf}, Queue: opts.Queue}, nil
}

func singleLeaf(program models.Program, in *models.Input, opts models.ComputeOptions) (*LeafSpec, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return &LeafSpec{
		Task:    TaskCompute,
		Program: program.String(),
		Input:   raw,
		Options: opts,
	}, nil
}

// planChord expands a bigchem DualProgramInput into 6·natoms
// displacement gradient leaves plus one reference energy leaf, reduced
// by a hessian assembly or frequency analysis leaf.
func planChord(in *models.Input, opts models.ComputeOptions) (*Plan, error) {
	if in.Shape() != models.ShapeDualProgramInput {
		return nil, fmt.Errorf("%w: bigchem requires a DualProgramInput", models.ErrInvalidInput)
	}

	var reducerTask string
	switch in.Calctype {
	case models.CalcHessian:
		reducerTask = TaskAssembleHessian
	case models.CalcProperties:
		reducerTask = TaskFrequencyAnalysis
	default:
		return nil, fmt.Errorf("%w: bigchem supports hessian and properties, got %q",
			models.ErrUnsupportedCalcType, in.Calctype)
	}

	dh := displacement(in)
	subModel := in.Model
	var subKeywords map[string]any
	if in.SubprogramArgs != nil {
		if in.SubprogramArgs.Model != nil {
			subModel = in.SubprogramArgs.Model
		}
		subKeywords = in.SubprogramArgs.Keywords
	}

	coords := len(in.Structure.Geometry)
	leaves := make([]LeafSpec, 0, 2*coords+1)
	for i := 0; i < coords; i++ {
		for _, sign := range []float64{1, -1} {
			displaced := *in.Structure
			displaced.Geometry = append([]float64(nil), in.Structure.Geometry...)
			displaced.Geometry[i] += sign * dh

			gradInput := models.Input{
				Calctype:  models.CalcGradient,
				Structure: &displaced,
				Model:     subModel,
				Keywords:  subKeywords,
			}
			raw, err := json.Marshal(&gradInput)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
			}
			leaves = append(leaves, LeafSpec{
				Task:    TaskCompute,
				Program: in.Subprogram,
				Input:   raw,
				Options: opts,
			})
		}
	}

	// Reference energy at the undisplaced geometry.
	refInput := models.Input{
		Calctype:  models.CalcEnergy,
		Structure: in.Structure,
		Model:     subModel,
		Keywords:  subKeywords,
	}
	raw, err := json.Marshal(&refInput)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	leaves = append(leaves, LeafSpec{
		Task:    TaskCompute,
		Program: in.Subprogram,
		Input:   raw,
		Options: opts,
	})

	reducerInput, err := json.Marshal(map[string]any{
		"calctype": in.Calctype,
		"dh":       dh,
		"input":    in,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	return &Plan{
		Kind:   dag.KindChord,
		Leaves: leaves,
		Reducer: &LeafSpec{
			Task:    reducerTask,
			Program: models.ProgramBigChem.String(),
			Input:   reducerInput,
			Options: opts,
		},
		Queue: opts.Queue,
	}, nil
}

func displacement(in *models.Input) float64 {
	if v, ok := in.Keywords["dh"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			return f
		}
	}
	return DefaultDisplacement
}
