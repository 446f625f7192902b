package workflow

// stepGraph is the resolved dependency graph over a Workflow's steps,
// grounded on the teacher's graph/edge.go adjacency-list construction but
// built over plain step ids instead of a generic Node[S].
type stepGraph struct {
	steps    []Step
	byID     map[string]*Step
	children map[string][]string // parent id -> child ids, in declaration order
	indegree map[string]int
	order    []string // stable topological order
}

// buildStepGraph resolves parent/child adjacency, rejects unknown parents,
// and computes a stable topological order. Ties are broken by declaration
// order (Step.index), which is what makes the scheduler's dispatch order
// reproducible across runs regardless of completion timing.
func buildStepGraph(w *Workflow) (*stepGraph, error) {
	g := &stepGraph{
		steps:    w.Steps,
		byID:     make(map[string]*Step, len(w.Steps)),
		children: make(map[string][]string, len(w.Steps)),
		indegree: make(map[string]int, len(w.Steps)),
	}
	for i := range w.Steps {
		s := &w.Steps[i]
		g.byID[s.ID] = s
		g.indegree[s.ID] = 0
	}
	for i := range w.Steps {
		s := &w.Steps[i]
		for _, parentID := range s.ParentStepIDs {
			parent, ok := g.byID[parentID]
			if !ok {
				return nil, &EngineError{
					Code:    ErrCodeWorkflowBadParent,
					Message: "step " + s.ID + " declares unknown parent " + parentID,
					StepID:  s.ID,
				}
			}
			_ = parent
			g.children[parentID] = append(g.children[parentID], s.ID)
			g.indegree[s.ID]++
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort runs a Kahn's-algorithm topological sort with a min-heap-free,
// index-ordered ready queue: at each step the lowest-declaration-index
// ready node is emitted next, so the resulting order is a pure function of
// the workflow document and never of map iteration or goroutine timing.
func (g *stepGraph) topoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indeg[id] = d
	}

	ready := make([]string, 0, len(g.steps))
	for i := range g.steps {
		s := &g.steps[i]
		if indeg[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}
	sortByDeclIndex(ready, g.byID)

	order := make([]string, 0, len(g.steps))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for _, childID := range g.children[id] {
			indeg[childID]--
			if indeg[childID] == 0 {
				newlyReady = append(newlyReady, childID)
			}
		}
		if len(newlyReady) > 0 {
			ready = append(ready, newlyReady...)
			sortByDeclIndex(ready, g.byID)
		}
	}

	if len(order) != len(g.steps) {
		return nil, &EngineError{Code: ErrCodeWorkflowCyclic, Message: "dependency graph contains a cycle"}
	}
	return order, nil
}

func sortByDeclIndex(ids []string, byID map[string]*Step) {
	// Small insertion sort: ready queues are short (out-degree of a single
	// dispatch round), and this keeps declaration order stable without
	// importing sort for a handful of elements at a time.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && byID[ids[j-1]].index > byID[ids[j]].index; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// readyAfter returns the step ids whose parents are all present in done,
// excluding ids already in done, in declaration order.
func (g *stepGraph) readyAfter(done map[string]bool) []string {
	var ready []string
	for i := range g.steps {
		s := &g.steps[i]
		if done[s.ID] {
			continue
		}
		allDone := true
		for _, p := range s.ParentStepIDs {
			if !done[p] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, s.ID)
		}
	}
	return ready
}
