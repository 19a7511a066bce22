package spatial

import "container/heap"

// Cell is a grid coordinate.
type Cell struct {
	X, Z int
}

var neighbours = [4]Cell{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}

type pathNode struct {
	cell   Cell
	g, f   int
	parent *pathNode
	index  int
}

type openSet []*pathNode

func (o openSet) Len() int           { return len(o) }
func (o openSet) Less(i, j int) bool { return o[i].f < o[j].f }
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	n := x.(*pathNode)
	n.index = len(*o)
	*o = append(*o, n)
}
func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*o = old[:len(old)-1]
	return n
}

func manhattan(a, b Cell) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dz
}

// astar finds the shortest 4-connected path from `from` to `to`.
// Returns the cells excluding the start and including the end, an empty
// slice when from == to, and nil if no path exists.
func astar(passable func(Cell) bool, from, to Cell) []Cell {
	if !passable(from) || !passable(to) {
		return nil
	}
	if from == to {
		return []Cell{}
	}

	closed := make(map[Cell]bool)
	gScore := map[Cell]int{from: 0}
	open := &openSet{}
	heap.Push(open, &pathNode{cell: from, f: manhattan(from, to)})

	for open.Len() > 0 {
		cur := heap.Pop(open).(*pathNode)
		if closed[cur.cell] {
			continue
		}
		closed[cur.cell] = true

		if cur.cell == to {
			var path []Cell
			for n := cur; n.parent != nil; n = n.parent {
				path = append(path, n.cell)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		for _, d := range neighbours {
			next := Cell{cur.cell.X + d.X, cur.cell.Z + d.Z}
			if closed[next] || !passable(next) {
				continue
			}
			ng := cur.g + 1
			if prev, ok := gScore[next]; ok && ng >= prev {
				continue
			}
			gScore[next] = ng
			heap.Push(open, &pathNode{
				cell:   next,
				g:      ng,
				f:      ng + manhattan(next, to),
				parent: cur,
			})
		}
	}
	return nil
}
