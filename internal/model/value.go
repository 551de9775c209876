package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a single attribute value: a float, an integer count, or a composite tuple
// such as an RGB byte triple. Values are totally ordered so any of them can be reduced
// by the median rule.
type Value struct {
	num      float64
	parts    []float64
	integral bool
}

func Float(f float64) Value { return Value{num: f} }

func Int(i int) Value { return Value{num: float64(i), integral: true} }

func Tuple(parts ...float64) Value {
	cp := make([]float64, len(parts))
	copy(cp, parts)
	return Value{parts: cp, integral: true}
}

func (v Value) IsTuple() bool { return v.parts != nil }

func (v Value) IsInt() bool { return v.integral && v.parts == nil }

// Float returns the scalar value. Tuples report their first component.
func (v Value) Float() float64 {
	if v.parts != nil {
		if len(v.parts) == 0 {
			return 0
		}
		return v.parts[0]
	}
	return v.num
}

func (v Value) Parts() []float64 {
	cp := make([]float64, len(v.parts))
	copy(cp, v.parts)
	return cp
}

// IsZero reports whether the value is falsy: a zero scalar or an empty tuple.
func (v Value) IsZero() bool {
	if v.parts != nil {
		return len(v.parts) == 0
	}
	return v.num == 0
}

// Compare orders scalars numerically and tuples lexicographically. A scalar sorts
// before any tuple.
func (v Value) Compare(o Value) int {
	switch {
	case v.parts == nil && o.parts == nil:
		return cmpFloat(v.num, o.num)
	case v.parts == nil:
		return -1
	case o.parts == nil:
		return 1
	}
	for i := 0; i < len(v.parts) && i < len(o.parts); i++ {
		if c := cmpFloat(v.parts[i], o.parts[i]); c != 0 {
			return c
		}
	}
	return len(v.parts) - len(o.parts)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String formats integers and tuples verbatim and floats with two decimals.
func (v Value) String() string {
	if v.parts != nil {
		items := make([]string, len(v.parts))
		for i, p := range v.parts {
			items[i] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		return "(" + strings.Join(items, ", ") + ")"
	}
	if v.integral {
		return strconv.FormatInt(int64(v.num), 10)
	}
	return fmt.Sprintf("%.2f", v.num)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.parts != nil {
		return json.Marshal(v.parts)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return []byte("null"), nil
	}
	if v.integral {
		return []byte(strconv.FormatInt(int64(v.num), 10)), nil
	}
	// whole floats keep a decimal point so they decode back as floats
	s := strconv.FormatFloat(v.num, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var parts []float64
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*v = Tuple(parts...)
		return nil
	}
	if string(b) == "null" {
		*v = Float(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	if bytes.ContainsAny(b, ".eE") {
		*v = Float(f)
	} else {
		*v = Int(int(f))
	}
	return nil
}
