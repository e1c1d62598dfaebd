package worker

import (
	"fmt"
	"math/rand"

	"github.com/me/ossim/pkg/model"
)

// Policy weights the one-time draw of a worker's outcome category.
type Policy struct {
	Continue  int `yaml:"continue" json:"continue"`
	Block     int `yaml:"block" json:"block"`
	Terminate int `yaml:"terminate" json:"terminate"`
}

// DefaultPolicy returns the 90/5/5 split.
func DefaultPolicy() Policy {
	return Policy{Continue: 90, Block: 5, Terminate: 5}
}

// Validate rejects negative weights and an all-zero policy.
func (p Policy) Validate() error {
	if p.Continue < 0 || p.Block < 0 || p.Terminate < 0 {
		return fmt.Errorf("policy weights must not be negative (%d/%d/%d)", p.Continue, p.Block, p.Terminate)
	}
	if p.total() == 0 {
		return fmt.Errorf("policy weights must not all be zero")
	}
	return nil
}

func (p Policy) total() int { return p.Continue + p.Block + p.Terminate }

// Draw picks an outcome category with probability proportional to its weight.
func (p Policy) Draw(r *rand.Rand) model.Outcome {
	n := r.Intn(p.total())
	switch {
	case n < p.Continue:
		return model.OutcomeContinue
	case n < p.Continue+p.Block:
		return model.OutcomeBlock
	default:
		return model.OutcomeTerminate
	}
}
