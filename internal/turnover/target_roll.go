package turnover

import (
	"fmt"
	"strings"
)

// Modifier is one labelled term of a target number.
type Modifier struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// TargetRoll is the number a 2d6 roll must reach for a person to stay.
// Modifiers keep the order they were applied in.
type TargetRoll struct {
	Base      int        `json:"base"`
	Modifiers []Modifier `json:"modifiers"`
}

func (t *TargetRoll) add(value int, label string) {
	if value == 0 {
		return
	}
	t.Modifiers = append(t.Modifiers, Modifier{Value: value, Label: label})
}

// Value is the base plus every modifier.
func (t TargetRoll) Value() int {
	v := t.Base
	for _, m := range t.Modifiers {
		v += m.Value
	}
	return v
}

// Description renders the breakdown, e.g. "3 (base) +3 (Veteran) -1 (officer)".
func (t TargetRoll) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d (base)", t.Base)
	for _, m := range t.Modifiers {
		fmt.Fprintf(&b, " %+d (%s)", m.Value, m.Label)
	}
	return b.String()
}
