// Package solver provides a small binary-program solver behind a capability
// interface: build a Model, call Solve with a wall-clock budget, inspect the
// status. The implementation is branch & bound over LP relaxations solved by
// gonum's simplex; callers must treat any non-optimal status as a signal to
// use their own fallback.
package solver

import "fmt"

// Sense is the comparison direction of one constraint row
type Sense int

const (
	SenseEq Sense = iota
	SenseLe
	SenseGe
)

// Constraint is one dense linear row: Coeffs·x (Sense) RHS
type Constraint struct {
	Coeffs []float64
	RHS    float64
	Sense  Sense
}

// Model is a binary integer program: minimize Obj·x subject to Constraints,
// x[j] in {0,1}.
type Model struct {
	Obj         []float64
	Constraints []Constraint
}

// NewModel creates a model with n binary decision variables
func NewModel(n int) *Model {
	return &Model{Obj: make([]float64, n)}
}

// NumVars returns the number of decision variables
func (m *Model) NumVars() int { return len(m.Obj) }

// SetObjective sets the cost coefficient of variable j
func (m *Model) SetObjective(j int, c float64) {
	m.Obj[j] = c
}

// AddConstraint appends a dense row. The coefficient slice must have
// exactly NumVars entries.
func (m *Model) AddConstraint(coeffs []float64, sense Sense, rhs float64) error {
	if len(coeffs) != m.NumVars() {
		return fmt.Errorf("constraint has %d coefficients, model has %d variables", len(coeffs), m.NumVars())
	}
	m.Constraints = append(m.Constraints, Constraint{Coeffs: coeffs, Sense: sense, RHS: rhs})
	return nil
}

// Status reports how a solve ended
type Status int

const (
	// StatusOptimal - proven optimal integer solution found within budget
	StatusOptimal Status = iota
	// StatusInfeasible - no integer solution satisfies the constraints
	StatusInfeasible
	// StatusBudgetExceeded - the wall-clock budget ran out first
	StatusBudgetExceeded
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusBudgetExceeded:
		return "budget_exceeded"
	}
	return "unknown"
}

// Solution is the result of a solve. Values holds a 0/1 assignment per
// variable and is only meaningful when Status == StatusOptimal.
type Solution struct {
	Values    []float64
	Objective float64
	Status    Status
	Nodes     int // branch & bound nodes explored
}
