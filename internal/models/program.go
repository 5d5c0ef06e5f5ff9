package models

import "fmt"

// Program names a supported compute program. ProgramBigChem is a
// pseudo-program selecting a parallel distributed algorithm rather than
// a single backend.
type Program string

const (
	ProgramPsi4      Program = "psi4"
	ProgramTeraChem  Program = "terachem"
	ProgramRDKit     Program = "rdkit"
	ProgramXTB       Program = "xtb"
	ProgramGeometric Program = "geometric"
	ProgramCrest     Program = "crest"
	ProgramBigChem   Program = "bigchem"
)

var supportedPrograms = map[Program]struct{}{
	ProgramPsi4:      {},
	ProgramTeraChem:  {},
	ProgramRDKit:     {},
	ProgramXTB:       {},
	ProgramGeometric: {},
	ProgramCrest:     {},
	ProgramBigChem:   {},
}

// ParseProgram validates a program tag from the request.
func ParseProgram(s string) (Program, error) {
	p := Program(s)
	if _, ok := supportedPrograms[p]; !ok {
		return "", fmt.Errorf("unsupported program %q", s)
	}
	return p, nil
}

// String returns the wire form of the program tag. Workers receive this
// plain string, never a gateway-native type.
func (p Program) String() string { return string(p) }
