package augment

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kiryteo/lumin/internal/tensor"
)

// #region validate
// Validate returns a corrected copy of spec plus a notice for every
// correction applied.
func Validate(spec Spec) (Spec, []Notice) {
	var notices []Notice
	out := Spec{
		RotationMultiplicity: spec.RotationMultiplicity,
		RandomRotation:       spec.RandomRotation,
	}

	if out.RotationMultiplicity < 0 {
		notices = append(notices, Notice{
			Field:   "rotation_multiplicity",
			Message: fmt.Sprintf("negative value %d treated as 0", out.RotationMultiplicity),
		})
		out.RotationMultiplicity = 0
	}
	if out.RotationMultiplicity > 0 && !out.RandomRotation && out.RotationMultiplicity%2 != 0 {
		notices = append(notices, Notice{
			Field: "rotation_multiplicity",
			Message: fmt.Sprintf("fixed rotations need an even multiplicity, using %d instead of %d",
				out.RotationMultiplicity+1, out.RotationMultiplicity),
		})
		out.RotationMultiplicity++
	}

	seen := map[Axis]bool{}
	for _, a := range spec.ReflectAxes {
		if seen[a] {
			notices = append(notices, Notice{Field: "reflect_axes", Message: fmt.Sprintf("duplicate axis %s dropped", a)})
			continue
		}
		seen[a] = true
		// x flips are reachable through rotation followed by a y flip
		if a == AxisX && out.RotationMultiplicity > 0 {
			notices = append(notices, Notice{Field: "reflect_axes", Message: "x reflection is redundant with rotation, dropped"})
			continue
		}
		out.ReflectAxes = append(out.ReflectAxes, a)
	}
	return out, notices
}

// #endregion validate

// #region table
// Table pairs a feature matrix with its column names and the vector triplets
// found among them.
type Table struct {
	Features []string
	Values   tensor.Matrix
	vectors  []string
	index    map[string]int
}

// NewTable indexes the feature names of m. Vectors are the feature names
// ending in _px with the suffix removed.
func NewTable(features []string, m tensor.Matrix) (*Table, error) {
	if len(features) != m.Cols {
		return nil, fmt.Errorf("%d feature names for %d columns", len(features), m.Cols)
	}
	t := &Table{Features: features, Values: m, index: make(map[string]int, len(features))}
	for i, f := range features {
		t.index[f] = i
		if strings.HasSuffix(f, AxisX.Suffix()) {
			t.vectors = append(t.vectors, strings.TrimSuffix(f, AxisX.Suffix()))
		}
	}
	return t, nil
}

// Vectors lists the vector base names in feature order.
func (t *Table) Vectors() []string {
	return t.vectors
}

// Clone deep-copies the values; feature indexing is shared.
func (t *Table) Clone() *Table {
	c := *t
	c.Values = t.Values.Clone()
	return &c
}

func (t *Table) column(vector string, a Axis) (int, bool) {
	i, ok := t.index[vector+a.Suffix()]
	return i, ok
}

// #endregion table

// #region rotate
// Rotate turns every vector's (px, py) by angles[event] about the z axis.
// pz is untouched.
func Rotate(t *Table, angles []float64) error {
	if len(angles) != t.Values.Rows {
		return fmt.Errorf("%d angles for %d events", len(angles), t.Values.Rows)
	}
	for _, v := range t.vectors {
		xi, okX := t.column(v, AxisX)
		yi, okY := t.column(v, AxisY)
		if !okX || !okY {
			continue
		}
		for ev, theta := range angles {
			row := t.Values.Row(ev)
			sin, cos := math.Sincos(theta)
			px, py := row[xi], row[yi]
			row[xi] = px*cos - py*sin
			row[yi] = py*cos + px*sin
		}
	}
	return nil
}

// #endregion rotate

// #region reflect
// Reflect negates component axes[a] of every vector for each event where
// flips[a][event] is set. Axes with no matching column are skipped.
func Reflect(t *Table, axes []Axis, flips [][]bool) error {
	if len(flips) != len(axes) {
		return fmt.Errorf("%d flip vectors for %d axes", len(flips), len(axes))
	}
	for a, axis := range axes {
		if len(flips[a]) != t.Values.Rows {
			return fmt.Errorf("axis %s: %d flips for %d events", axis, len(flips[a]), t.Values.Rows)
		}
		for _, v := range t.vectors {
			ci, ok := t.column(v, axis)
			if !ok {
				continue
			}
			for ev, flip := range flips[a] {
				if flip {
					row := t.Values.Row(ev)
					row[ci] = -row[ci]
				}
			}
		}
	}
	return nil
}

// #endregion reflect

// #region enumerate
// EnumerateView maps index in [0, Multiplicity) to its view. The rotation
// index cycles fastest; the reflection code index/R is written as a
// fixed-width binary number whose leading bit belongs to the first axis.
func EnumerateView(index int, spec Spec) (View, error) {
	mult := spec.Multiplicity()
	if index < 0 || index >= mult {
		return View{}, fmt.Errorf("index %d outside [0, %d): %w", index, mult, ErrInvalidAugmentationIndex)
	}

	view := View{Index: index, Reflect: make([]bool, len(spec.ReflectAxes))}
	div := 1
	if r := spec.RotationMultiplicity; r > 0 {
		div = r
		if spec.RandomRotation {
			view.RandomAngle = true
		} else {
			view.Angle = 2 * math.Pi * float64(index%r) / float64(r)
		}
	}

	if n := len(spec.ReflectAxes); n > 0 {
		code := strconv.FormatInt(int64(index/div), 2)
		code = strings.Repeat("0", n-len(code)) + code
		for i := range view.Reflect {
			view.Reflect[i] = code[i] == '1'
		}
	}
	return view, nil
}

// #endregion enumerate

// #region apply
// ApplyView transforms t in place with a deterministic view. Per-event
// angles are drawn from rng when the view's angle is random.
func ApplyView(t *Table, spec Spec, view View, rng *rand.Rand) error {
	n := t.Values.Rows
	if spec.RotationMultiplicity > 0 {
		angles := make([]float64, n)
		for i := range angles {
			if view.RandomAngle {
				angles[i] = 2 * math.Pi * rng.Float64()
			} else {
				angles[i] = view.Angle
			}
		}
		if err := Rotate(t, angles); err != nil {
			return err
		}
	}
	if len(spec.ReflectAxes) == 0 {
		return nil
	}
	flips := make([][]bool, len(spec.ReflectAxes))
	for a := range flips {
		flips[a] = make([]bool, n)
		if view.Reflect[a] {
			for i := range flips[a] {
				flips[a][i] = true
			}
		}
	}
	return Reflect(t, spec.ReflectAxes, flips)
}

// ApplyRandom transforms t in place with a fresh random angle per event and
// an independent fair coin per event and axis.
func ApplyRandom(t *Table, spec Spec, rng *rand.Rand) error {
	n := t.Values.Rows
	if spec.RotationMultiplicity > 0 {
		angles := make([]float64, n)
		for i := range angles {
			angles[i] = 2 * math.Pi * rng.Float64()
		}
		if err := Rotate(t, angles); err != nil {
			return err
		}
	}
	if len(spec.ReflectAxes) == 0 {
		return nil
	}
	flips := make([][]bool, len(spec.ReflectAxes))
	for a := range flips {
		flips[a] = make([]bool, n)
		for i := range flips[a] {
			flips[a][i] = rng.IntN(2) == 1
		}
	}
	return Reflect(t, spec.ReflectAxes, flips)
}

// #endregion apply
