package pipeline

import (
	"github.com/waabox/conveyor/internal/domain"
)

// Graph is the directed dependency graph induced by job `needs` edges.
// It is built once per pipeline and is immutable; readiness is computed
// against a caller-owned status map.
type Graph struct {
	order []string
	needs map[string][]string
}

// NewGraph builds and validates the graph. Duplicate job names, unknown
// needs references, and cycles are ConfigurationErrors; a cycle error
// carries the offending node sequence.
func NewGraph(jobs []domain.Job) (*Graph, error) {
	g := &Graph{needs: make(map[string][]string, len(jobs))}
	for _, job := range jobs {
		if _, dup := g.needs[job.Name]; dup {
			return nil, domain.Configf("duplicate job name %q", job.Name)
		}
		g.order = append(g.order, job.Name)
		g.needs[job.Name] = job.Needs
	}
	for _, job := range jobs {
		for _, dep := range job.Needs {
			if _, ok := g.needs[dep]; !ok {
				return nil, domain.Configf("job %q needs unknown job %q", job.Name, dep)
			}
			if dep == job.Name {
				return nil, &domain.ConfigurationError{
					Msg:   "dependency cycle detected",
					Cycle: []string{job.Name, job.Name},
				}
			}
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, &domain.ConfigurationError{Msg: "dependency cycle detected", Cycle: cycle}
	}
	return g, nil
}

// Jobs returns all job names in declaration order.
func (g *Graph) Jobs() []string {
	return g.order
}

// Needs returns the direct dependencies of the named job.
func (g *Graph) Needs(name string) []string {
	return g.needs[name]
}

// Ready returns, in declaration order, every pending job whose
// dependencies have all succeeded. It must be consulted again after each
// terminal transition since newly-ready jobs may appear.
func (g *Graph) Ready(statuses map[string]domain.Status) []string {
	var ready []string
	for _, name := range g.order {
		if statuses[name] != domain.StatusPending {
			continue
		}
		satisfied := true
		for _, dep := range g.needs[name] {
			if statuses[dep] != domain.StatusSucceeded {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, name)
		}
	}
	return ready
}

// Blocked returns, in declaration order, every pending job that can no
// longer run because some dependency reached a terminal state other than
// succeeded. The computation runs to a fixpoint so skips propagate through
// chains of dependents in one call.
func (g *Graph) Blocked(statuses map[string]domain.Status) []string {
	blocked := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, name := range g.order {
			if blocked[name] || statuses[name] != domain.StatusPending {
				continue
			}
			for _, dep := range g.needs[name] {
				depBlocked := blocked[dep]
				depStatus := statuses[dep]
				if depBlocked || (depStatus.Terminal() && depStatus != domain.StatusSucceeded) {
					blocked[name] = true
					changed = true
					break
				}
			}
		}
	}
	var names []string
	for _, name := range g.order {
		if blocked[name] {
			names = append(names, name)
		}
	}
	return names
}

// findCycle runs a depth-first search in declaration order and returns
// the first cycle found as a node sequence starting and ending at the
// same job, or nil for acyclic graphs. Declaration-order traversal keeps
// the reported cycle deterministic.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.order))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = inStack
		stack = append(stack, name)
		for _, dep := range g.needs[name] {
			switch state[dep] {
			case inStack:
				// Slice the stack from the first occurrence of dep to
				// close the loop.
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, name := range g.order {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}
