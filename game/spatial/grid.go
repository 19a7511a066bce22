package spatial

import (
	"math"
)

// Grid is the reference QueryService: a square-cell walkability grid on the
// ground plane with 4-connected A* reachability, connected-region labels and
// chipmunk-backed occlusion for walls and cover.
type Grid struct {
	Cols, Rows int
	CellSize   float64
	Origin     Vec // world position of cell (0,0)'s minimum corner

	walkable []bool
	cover    []bool // blocks sight without blocking movement
	regions  []int  // -1 when not walkable; valid after Build
	occ      *Occluders
	built    bool
}

// NewGrid creates a fully walkable grid.
func NewGrid(cols, rows int, cellSize float64, origin Vec) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	g := &Grid{
		Cols:     cols,
		Rows:     rows,
		CellSize: cellSize,
		Origin:   origin,
		walkable: make([]bool, cols*rows),
		cover:    make([]bool, cols*rows),
		regions:  make([]int, cols*rows),
		occ:      NewOccluders(),
	}
	for i := range g.walkable {
		g.walkable[i] = true
	}
	return g
}

func (g *Grid) inBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.Cols && c.Z >= 0 && c.Z < g.Rows
}

func (g *Grid) idx(c Cell) int { return c.Z*g.Cols + c.X }

// SetBlocked marks a cell as a wall (blocks movement and sight).
func (g *Grid) SetBlocked(c Cell, blocked bool) {
	if !g.inBounds(c) {
		return
	}
	g.walkable[g.idx(c)] = !blocked
	g.built = false
}

// SetCover marks a cell as cover (blocks sight, still walkable).
func (g *Grid) SetCover(c Cell, cover bool) {
	if !g.inBounds(c) {
		return
	}
	g.cover[g.idx(c)] = cover
	g.built = false
}

// Walkable reports whether a cell can be stood on.
func (g *Grid) Walkable(c Cell) bool {
	return g.inBounds(c) && g.walkable[g.idx(c)]
}

// Build labels connected regions and rebuilds the occluder space.
// Call after editing cells; queries build lazily if needed.
func (g *Grid) Build() {
	for i := range g.regions {
		g.regions[i] = -1
	}
	next := 0
	for z := 0; z < g.Rows; z++ {
		for x := 0; x < g.Cols; x++ {
			c := Cell{x, z}
			if !g.Walkable(c) || g.regions[g.idx(c)] >= 0 {
				continue
			}
			g.flood(c, next)
			next++
		}
	}

	// A fresh space drops any movers registered on the previous one.
	g.occ = NewOccluders()
	for z := 0; z < g.Rows; z++ {
		for x := 0; x < g.Cols; x++ {
			c := Cell{x, z}
			lo := g.corner(c)
			hi := Vec{X: lo.X + g.CellSize, Z: lo.Z + g.CellSize}
			switch {
			case !g.walkable[g.idx(c)]:
				g.occ.AddBox(lo, hi, MaskWorld, "wall")
			case g.cover[g.idx(c)]:
				g.occ.AddBox(lo, hi, MaskProps, "cover")
			}
		}
	}
	g.built = true
}

func (g *Grid) flood(start Cell, region int) {
	queue := []Cell{start}
	g.regions[g.idx(start)] = region
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range neighbours {
			n := Cell{c.X + d.X, c.Z + d.Z}
			if !g.Walkable(n) || g.regions[g.idx(n)] >= 0 {
				continue
			}
			g.regions[g.idx(n)] = region
			queue = append(queue, n)
		}
	}
}

func (g *Grid) ensureBuilt() {
	if !g.built {
		g.Build()
	}
}

// Occluders exposes the sight-blocker space so movers (agent, target) can be registered.
func (g *Grid) Occluders() *Occluders {
	g.ensureBuilt()
	return g.occ
}

func (g *Grid) corner(c Cell) Vec {
	return Vec{
		X: g.Origin.X + float64(c.X)*g.CellSize,
		Y: g.Origin.Y,
		Z: g.Origin.Z + float64(c.Z)*g.CellSize,
	}
}

// CellAt returns the cell containing p.
func (g *Grid) CellAt(p Vec) (Cell, bool) {
	c := Cell{
		X: int(math.Floor((p.X - g.Origin.X) / g.CellSize)),
		Z: int(math.Floor((p.Z - g.Origin.Z) / g.CellSize)),
	}
	return c, g.inBounds(c)
}

// Center returns the world-space center of a cell.
func (g *Grid) Center(c Cell) Vec {
	p := g.corner(c)
	p.X += g.CellSize / 2
	p.Z += g.CellSize / 2
	return p
}

// Region implements Regioner.
func (g *Grid) Region(p Vec) (int, bool) {
	g.ensureBuilt()
	c, ok := g.CellAt(p)
	if !ok || !g.walkable[g.idx(c)] {
		return 0, false
	}
	return g.regions[g.idx(c)], true
}

// NearestWalkable searches outward ring by ring for the walkable cell center
// closest to p within maxRadius. A point already on a walkable cell is returned as-is.
func (g *Grid) NearestWalkable(p Vec, maxRadius float64) (Vec, bool) {
	g.ensureBuilt()
	origin, _ := g.CellAt(p)
	if g.Walkable(origin) {
		return p, true
	}
	rings := int(math.Ceil(maxRadius/g.CellSize)) + 1
	best := Vec{}
	bestD := math.Inf(1)
	for r := 1; r <= rings; r++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dz)) != r {
					continue
				}
				c := Cell{origin.X + dx, origin.Z + dz}
				if !g.Walkable(c) {
					continue
				}
				center := g.Center(c)
				center.Y = p.Y
				d := HorizontalDistSq(p, center)
				if d <= maxRadius*maxRadius && d < bestD {
					best, bestD = center, d
				}
			}
		}
		// Cells in ring r+1 are at least (r+0.5) cells away.
		if bound := (float64(r) + 0.5) * g.CellSize; bestD <= bound*bound {
			break
		}
	}
	if math.IsInf(bestD, 1) {
		return Vec{}, false
	}
	return best, true
}

// Path returns world-space waypoints (cell centers) from `from` to `to`,
// excluding the start cell, and nil when no complete path exists.
func (g *Grid) Path(from, to Vec) []Vec {
	g.ensureBuilt()
	a, okA := g.CellAt(from)
	b, okB := g.CellAt(to)
	if !okA || !okB {
		return nil
	}
	if ra, rb := g.regions[g.idx(a)], g.regions[g.idx(b)]; ra < 0 || ra != rb {
		return nil
	}
	cells := astar(g.Walkable, a, b)
	if cells == nil {
		return nil
	}
	out := make([]Vec, 0, len(cells))
	for _, c := range cells {
		w := g.Center(c)
		w.Y = to.Y
		out = append(out, w)
	}
	if len(out) > 0 {
		out[len(out)-1] = to
	}
	return out
}

// PathExists implements QueryService.
func (g *Grid) PathExists(from, to Vec) bool {
	g.ensureBuilt()
	a, okA := g.CellAt(from)
	b, okB := g.CellAt(to)
	if !okA || !okB || !g.Walkable(a) || !g.Walkable(b) {
		return false
	}
	// Region labels are exact for a static 4-connected grid, so A* is only
	// needed by Path.
	return g.regions[g.idx(a)] == g.regions[g.idx(b)]
}

// RaycastOcclusion implements QueryService.
func (g *Grid) RaycastOcclusion(origin, target Vec, mask Mask) (Hit, bool) {
	g.ensureBuilt()
	return g.occ.Raycast(origin, target, 0, mask)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
