package spatial

// Mask selects which collider categories a query considers.
type Mask uint

const (
	MaskWorld  Mask = 1 << iota // static level geometry
	MaskProps                   // sight blockers that do not block navigation
	MaskAgent                   // the hostile agent's own collider
	MaskTarget                  // the player avatar

	MaskSight = MaskWorld | MaskProps | MaskTarget
	MaskAll   = MaskWorld | MaskProps | MaskAgent | MaskTarget
)

// Hit is the first collider struck by an occlusion query.
type Hit struct {
	Point    Vec
	Tag      string  // collider tag, e.g. "wall" or the target's tag
	Fraction float64 // 0 at origin, 1 at target
}

// QueryService is the navigation/physics collaborator the engine consumes.
// The engine never computes geometry itself; every call is synchronous and
// must fit inside one simulation tick.
type QueryService interface {
	// NearestWalkable returns the closest walkable point within maxRadius of p.
	NearestWalkable(p Vec, maxRadius float64) (Vec, bool)
	// PathExists reports whether a complete path joins from and to.
	// Disconnected or cross-region results must be rejected.
	PathExists(from, to Vec) bool
	// RaycastOcclusion casts from origin toward target and returns the first hit.
	RaycastOcclusion(origin, target Vec, mask Mask) (Hit, bool)
}

// Regioner is implemented by services that label connected navigation regions.
type Regioner interface {
	Region(p Vec) (int, bool)
}

// SameRegion reports whether a and b lie in the same connected region.
// Services without region labels treat every pair as connected.
func SameRegion(svc QueryService, a, b Vec) bool {
	r, ok := svc.(Regioner)
	if !ok {
		return true
	}
	ra, okA := r.Region(a)
	rb, okB := r.Region(b)
	return okA && okB && ra == rb
}

// Euclidean is the fallback used when no navigation graph is present:
// everything is walkable, reachable and unoccluded.
type Euclidean struct{}

func (Euclidean) NearestWalkable(p Vec, _ float64) (Vec, bool) { return p, true }

func (Euclidean) PathExists(_, _ Vec) bool { return true }

func (Euclidean) RaycastOcclusion(_, _ Vec, _ Mask) (Hit, bool) { return Hit{}, false }

// OrEuclidean returns svc, or the Euclidean fallback when svc is nil.
func OrEuclidean(svc QueryService) QueryService {
	if svc == nil {
		return Euclidean{}
	}
	return svc
}
