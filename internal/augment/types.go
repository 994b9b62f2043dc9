package augment

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAugmentationIndex is returned for a view index outside
// [0, Multiplicity).
var ErrInvalidAugmentationIndex = errors.New("invalid augmentation index")

// #region axis
// Axis names a Cartesian component of a vector feature.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// Suffix is the feature-name suffix holding this component.
func (a Axis) Suffix() string {
	return "_p" + string(a)
}

// ParseAxis accepts "x", "y" or "z" in any case.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToLower(strings.TrimSpace(s))) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	}
	return "", fmt.Errorf("unknown reflection axis %q", s)
}

// #endregion axis

// #region spec
// Spec configures event augmentation.
type Spec struct {
	RotationMultiplicity int    // number of fixed azimuthal rotations; 0 disables rotation
	RandomRotation       bool   // draw the angle per event instead of enumerating it
	ReflectAxes          []Axis // ordered; view bits are assigned in this order
}

// Multiplicity is the number of distinct test-time views.
func (s Spec) Multiplicity() int {
	m := 1
	if s.RotationMultiplicity > 0 {
		m = s.RotationMultiplicity
	}
	return m << len(s.ReflectAxes)
}

// Enabled reports whether the spec transforms anything.
func (s Spec) Enabled() bool {
	return s.RotationMultiplicity > 0 || len(s.ReflectAxes) > 0
}

// #endregion spec

// #region notice
// Notice is an advisory raised when a configuration was corrected rather
// than rejected.
type Notice struct {
	Field   string
	Message string
}

func (n Notice) String() string {
	return n.Field + ": " + n.Message
}

// #endregion notice

// #region view
// View is one test-time augmentation: a rotation angle and one reflection
// bit per configured axis. RandomAngle means the angle is drawn per event
// and Angle is unused.
type View struct {
	Index       int
	Angle       float64
	RandomAngle bool
	Reflect     []bool
}

// #endregion view
