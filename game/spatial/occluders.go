package spatial

import (
	"github.com/jakecoffman/cp"
)

// SelfGroup is the collision group carried by the hostile agent's collider and
// by its own occlusion queries, so a ray never hits the caster.
const SelfGroup uint = 1

// Occluders is a chipmunk space projected onto the ground plane, used only
// for segment queries. Static geometry lives on the space's static body;
// movers use kinematic bodies repositioned with Move.
type Occluders struct {
	space  *cp.Space
	movers map[string]*cp.Shape
	group  uint
}

// NewOccluders creates an empty occluder space. Queries exclude the given
// collision group (use SelfGroup for the agent's own perception).
func NewOccluders() *Occluders {
	return &Occluders{
		space:  cp.NewSpace(),
		movers: make(map[string]*cp.Shape),
		group:  SelfGroup,
	}
}

func toCP(v Vec) cp.Vector { return cp.Vector{X: v.X, Y: v.Z} }

func fromCP(v cp.Vector) Vec { return Vec{X: v.X, Z: v.Y} }

func filterFor(category Mask, group uint) cp.ShapeFilter {
	return cp.ShapeFilter{Group: group, Categories: uint(category), Mask: cp.ALL_CATEGORIES}
}

// AddBox adds a static axis-aligned box spanning lo..hi on the ground plane.
func (o *Occluders) AddBox(lo, hi Vec, category Mask, tag string) {
	bb := cp.BB{L: lo.X, B: lo.Z, R: hi.X, T: hi.Z}
	shape := cp.NewBox2(o.space.StaticBody, bb, 0)
	shape.SetFilter(filterFor(category, cp.NO_GROUP))
	shape.UserData = tag
	o.space.AddShape(shape)
}

// AddMover adds (or replaces) a movable circular collider.
// Movers in SelfGroup are invisible to this space's queries.
func (o *Occluders) AddMover(tag string, radius float64, category Mask, group uint, at Vec) {
	if old, ok := o.movers[tag]; ok {
		o.space.RemoveShape(old)
		o.space.RemoveBody(old.Body())
	}
	body := cp.NewKinematicBody()
	body.SetPosition(toCP(at))
	o.space.AddBody(body)
	shape := cp.NewCircle(body, radius, cp.Vector{})
	shape.SetFilter(filterFor(category, group))
	shape.UserData = tag
	o.space.AddShape(shape)
	o.movers[tag] = shape
}

// Move repositions a mover registered with AddMover. The space is never
// stepped, so the shape is re-added to refresh its bounds in the index.
func (o *Occluders) Move(tag string, at Vec) {
	shape, ok := o.movers[tag]
	if !ok {
		return
	}
	o.space.RemoveShape(shape)
	shape.Body().SetPosition(toCP(at))
	o.space.AddShape(shape)
}

// Raycast returns the first collider between origin and target matching mask.
func (o *Occluders) Raycast(origin, target Vec, radius float64, mask Mask) (Hit, bool) {
	if HorizontalDistSq(origin, target) < 1e-12 {
		return Hit{}, false
	}
	filter := cp.ShapeFilter{Group: o.group, Categories: cp.ALL_CATEGORIES, Mask: uint(mask)}
	info := o.space.SegmentQueryFirst(toCP(origin), toCP(target), radius, filter)
	if info.Shape == nil {
		return Hit{}, false
	}
	tag, _ := info.Shape.UserData.(string)
	hit := fromCP(info.Point)
	hit.Y = origin.Y + (target.Y-origin.Y)*info.Alpha
	return Hit{Point: hit, Tag: tag, Fraction: info.Alpha}, true
}

// RaycastOcclusion lets a bare Occluders serve as the occlusion part of a
// QueryService when paired with the Euclidean fallback for navigation.
func (o *Occluders) RaycastOcclusion(origin, target Vec, mask Mask) (Hit, bool) {
	return o.Raycast(origin, target, 0, mask)
}

// OpenField is a navigation-free world that still has sight blockers.
type OpenField struct {
	Euclidean
	*Occluders
}

// RaycastOcclusion resolves the ambiguity between the embedded types.
func (f OpenField) RaycastOcclusion(origin, target Vec, mask Mask) (Hit, bool) {
	return f.Occluders.RaycastOcclusion(origin, target, mask)
}
