// Package resource loads level files into navigation grids.
package resource

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kasuganosora/stalker/game/spatial"
)

// Level glyphs.
const (
	GlyphWall        = '#'
	GlyphFloor       = '.'
	GlyphCover       = 'o'
	GlyphAgentSpawn  = 'M'
	GlyphTargetSpawn = 'P'
)

type levelFile struct {
	Name     string    `yaml:"name"`
	CellSize float64   `yaml:"cell_size"`
	Origin   []float64 `yaml:"origin"` // x, y, z
	Rows     []string  `yaml:"rows"`
}

// Level is a parsed grid level. Row i of the file is grid row z=i.
type Level struct {
	Name         string
	Cols, Rows   int
	CellSize     float64
	Origin       spatial.Vec
	AgentSpawns  []spatial.Vec
	TargetSpawns []spatial.Vec

	walls  []spatial.Cell
	covers []spatial.Cell
}

// LoadLevel reads and parses a YAML level file.
func LoadLevel(path string) (*Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	lvl, err := ParseLevel(data)
	if err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return lvl, nil
}

// ParseLevel parses level YAML.
func ParseLevel(data []byte) (*Level, error) {
	var f levelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Rows) == 0 {
		return nil, errors.New("level has no rows")
	}
	lvl := &Level{
		Name:     f.Name,
		Cols:     len(f.Rows[0]),
		Rows:     len(f.Rows),
		CellSize: f.CellSize,
	}
	if lvl.CellSize <= 0 {
		lvl.CellSize = 1
	}
	switch len(f.Origin) {
	case 0:
	case 3:
		lvl.Origin = spatial.Vec{X: f.Origin[0], Y: f.Origin[1], Z: f.Origin[2]}
	default:
		return nil, fmt.Errorf("origin needs 3 components, got %d", len(f.Origin))
	}

	var agents, targets []spatial.Cell
	for z, row := range f.Rows {
		if len(row) != lvl.Cols {
			return nil, fmt.Errorf("row %d has %d cells, want %d", z, len(row), lvl.Cols)
		}
		for x := 0; x < len(row); x++ {
			c := spatial.Cell{X: x, Z: z}
			switch row[x] {
			case GlyphWall:
				lvl.walls = append(lvl.walls, c)
			case GlyphCover:
				lvl.covers = append(lvl.covers, c)
			case GlyphAgentSpawn:
				agents = append(agents, c)
			case GlyphTargetSpawn:
				targets = append(targets, c)
			case GlyphFloor:
			default:
				return nil, fmt.Errorf("row %d col %d: unknown glyph %q", z, x, row[x])
			}
		}
	}
	if len(agents) == 0 || len(targets) == 0 {
		return nil, errors.New("level needs at least one agent spawn (M) and one target spawn (P)")
	}

	g := lvl.Grid()
	for _, c := range agents {
		lvl.AgentSpawns = append(lvl.AgentSpawns, g.Center(c))
	}
	for _, c := range targets {
		lvl.TargetSpawns = append(lvl.TargetSpawns, g.Center(c))
	}
	return lvl, nil
}

// Grid builds a fresh navigation grid. Every session needs its own, since
// movers are registered on the grid's occluder space.
func (l *Level) Grid() *spatial.Grid {
	g := spatial.NewGrid(l.Cols, l.Rows, l.CellSize, l.Origin)
	for _, c := range l.walls {
		g.SetBlocked(c, true)
	}
	for _, c := range l.covers {
		g.SetCover(c, true)
	}
	g.Build()
	return g
}

// AgentSpawn returns the i-th agent spawn, cycling when there are fewer.
func (l *Level) AgentSpawn(i int) spatial.Vec {
	return l.AgentSpawns[i%len(l.AgentSpawns)]
}

// TargetSpawn returns the i-th target spawn, cycling when there are fewer.
func (l *Level) TargetSpawn(i int) spatial.Vec {
	return l.TargetSpawns[i%len(l.TargetSpawns)]
}
