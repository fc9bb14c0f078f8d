package plan

import (
	"github.com/tidemark/tidemark/internal/diff"
)

// changeGraph holds "must happen before" edges over an arena of change
// nodes. Nodes are indices into the change slice; edges[i] lists the nodes
// that must come after node i.
type changeGraph struct {
	changes []diff.Change
	edges   map[int][]int
	indeg   []int
}

func buildGraph(changes []diff.Change) *changeGraph {
	g := &changeGraph{
		changes: changes,
		edges:   make(map[int][]int),
		indeg:   make([]int, len(changes)),
	}

	addedTables := make(map[string]int)   // table name -> AddTable node
	droppedTables := make(map[string]int) // table name -> DropTable node
	for i := range changes {
		switch changes[i].Kind {
		case diff.AddTable:
			addedTables[changes[i].Table] = i
		case diff.DropTable:
			droppedTables[changes[i].Table] = i
		}
	}

	for i := range changes {
		c := &changes[i]
		switch c.Kind {
		case diff.AddForeignKey:
			// The owning table and the referenced table must exist first.
			if n, ok := addedTables[c.Table]; ok {
				g.addEdge(n, i)
			}
			if n, ok := addedTables[c.FKAfter.ReferencedTable]; ok && c.FKAfter.ReferencedTable != c.Table {
				g.addEdge(n, i)
			}
		case diff.DropForeignKey:
			// The constraint must be gone before either side of it drops.
			if n, ok := droppedTables[c.FKBefore.ReferencedTable]; ok {
				g.addEdge(i, n)
			}
			if n, ok := droppedTables[c.Table]; ok {
				g.addEdge(i, n)
			}
		case diff.AddColumn, diff.ModifyColumn:
			if n, ok := addedTables[c.Table]; ok {
				g.addEdge(n, i)
			}
		case diff.AddIndex, diff.AddCheck, diff.AddPrimaryKey:
			// Column changes on the same table come first so the entities
			// they reference exist.
			if n, ok := addedTables[c.Table]; ok {
				g.addEdge(n, i)
			}
			for j := range changes {
				if j != i && changes[j].Table == c.Table &&
					(changes[j].Kind == diff.AddColumn || changes[j].Kind == diff.ModifyColumn) {
					g.addEdge(j, i)
				}
			}
		case diff.DropColumn:
			// Indexes and constraints over the column drop first.
			for j := range changes {
				if j != i && changes[j].Table == c.Table &&
					(changes[j].Kind == diff.DropIndex || changes[j].Kind == diff.DropForeignKey ||
						changes[j].Kind == diff.DropCheck || changes[j].Kind == diff.DropPrimaryKey) {
					g.addEdge(j, i)
				}
			}
		}
	}

	return g
}

func (g *changeGraph) addEdge(from, to int) {
	g.edges[from] = append(g.edges[from], to)
	g.indeg[to]++
}

// sort returns a stable topological order using Kahn's algorithm: among
// ready nodes, the one emitted earliest by the differ goes first. When a
// cycle blocks completion, foreign key additions in the blocked remainder
// are deferred to a second pass (tables and columns first, constraints
// after). The leftover slice is non-empty only for truly unbreakable
// cycles.
func (g *changeGraph) sort() (order []int, deferred []int, leftover []int) {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	done := make([]bool, len(g.changes))
	for len(order) < len(g.changes) {
		picked := -1
		for i := range g.changes {
			if !done[i] && indeg[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			break
		}
		done[picked] = true
		order = append(order, picked)
		for _, to := range g.edges[picked] {
			indeg[to]--
		}
	}

	if len(order) == len(g.changes) {
		return order, nil, nil
	}

	// Cycle: release the blocked foreign key additions and retry. The
	// remaining structural changes must now sort cleanly.
	for i := range g.changes {
		if !done[i] && g.changes[i].Kind == diff.AddForeignKey {
			done[i] = true
			deferred = append(deferred, i)
			for _, to := range g.edges[i] {
				indeg[to]--
			}
		}
	}

	progress := true
	for progress {
		progress = false
		for i := range g.changes {
			if !done[i] && indeg[i] == 0 {
				done[i] = true
				order = append(order, i)
				for _, to := range g.edges[i] {
					indeg[to]--
				}
				progress = true
			}
		}
	}

	for i := range g.changes {
		if !done[i] {
			leftover = append(leftover, i)
		}
	}
	return order, deferred, leftover
}
