package coord

// Axis describes how one output axis is derived from one input axis: pick
// source axis `From` (0=X,1=Y,2=Z,3=W), and optionally reflect it against a
// dimension bound: out = Dim - in[From] when Reflect is true, out =
// in[From] otherwise.
type Axis struct {
	From    int
	Reflect bool
}

// Permutation is a set of four Axis rules, one per output axis, defining a
// platform's axis-swap convention. It must be self-inverse in the sense
// that applying it twice (with the matching Dimensions) returns the
// original vector. A caller that builds its conversion from a Permutation
// is responsible for choosing one that satisfies this.
type Permutation [4]Axis

// Apply maps v through p using dim for any reflected axis. dim is indexed
// the same way as the axis it reflects (dim.X reflects an axis whose
// Permutation entry has From referring to the dimension box's matching
// bound) — in practice bindings pass the same Dimensions used for both
// directions since the conversion is its own inverse on the box.
func (p Permutation) Apply(v Vec4, dim Vec4) Vec4 {
	src := v.Array()
	dims := dim.Array()
	var out [4]float64
	for i, a := range p {
		val := src[a.From]
		if a.Reflect {
			val = dims[i] - val
		}
		out[i] = val
	}
	return Vec4{out[0], out[1], out[2], out[3]}
}

// Identity is the no-op permutation (unified space IS platform space).
var Identity = Permutation{
	{From: 0}, {From: 1}, {From: 2}, {From: 3},
}
