// Package engine talks to PostgreSQL: it obtains execution plans via
// EXPLAIN and runs the introspection queries the advisor builds its
// context from.
package engine

import (
	"context"
	"errors"

	"github.com/mickamy/xadvise/internal/model"
)

// PlanSource obtains an execution plan for a statement. Failures must be
// distinguishable from success; the returned tree follows the PlanNode
// shape with optional fields zeroed when the engine omits them.
type PlanSource interface {
	Plan(ctx context.Context, statementText string) (*model.PlanNode, error)
}

// ErrNoPlan indicates the engine answered but returned no usable plan
// document.
var ErrNoPlan = errors.New("engine: no execution plan returned")
