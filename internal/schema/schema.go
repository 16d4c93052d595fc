// Package schema infers the shape of JSON API responses and tracks
// per-route baselines, reporting structural drift with hysteresis so a
// stable new contract is eventually accepted without alerting forever.
package schema

import "sort"

// Kind is the closed set of shape kinds.
type Kind int

const (
	KindUnknown Kind = iota // empty-array item shape; compatible with anything
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Node is a recursively-typed shape descriptor. It is a closed tagged
// union: Item is set only for arrays, Fields only for objects, and
// Nullable marks a shape that also admits null.
type Node struct {
	Kind     Kind             `json:"kind"`
	Nullable bool             `json:"nullable,omitempty"`
	Item     *Node            `json:"item,omitempty"`
	Fields   map[string]*Node `json:"fields,omitempty"`
}

// Infer derives the shape of a decoded JSON value. Arrays sample their
// first element only; the heterogeneous-array false positive this can
// produce is a known limitation of the contract, kept deliberately.
func Infer(v interface{}) *Node {
	switch val := v.(type) {
	case nil:
		return &Node{Kind: KindNull}
	case bool:
		return &Node{Kind: KindBool}
	case float64:
		return &Node{Kind: KindNumber}
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return &Node{Kind: KindNumber}
	case string:
		return &Node{Kind: KindString}
	case []interface{}:
		if len(val) == 0 {
			return &Node{Kind: KindArray}
		}
		return &Node{Kind: KindArray, Item: Infer(val[0])}
	case map[string]interface{}:
		fields := make(map[string]*Node, len(val))
		for k, fv := range val {
			fields[k] = Infer(fv)
		}
		return &Node{Kind: KindObject, Fields: fields}
	default:
		return &Node{Kind: KindUnknown}
	}
}

// Diff kinds.
const (
	DiffAdded       = "added"
	DiffRemoved     = "removed"
	DiffTypeChanged = "type_changed"
	DiffNullChanged = "null_changed"
)

// Diff is one structural difference between a baseline and an observed
// shape, located by a JSONPath-style path rooted at $.
type Diff struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Compare diffs an observed shape against a baseline. A type change at
// a node does not recurse into that node's children.
func Compare(base, cur *Node) []Diff {
	return compareAt(base, cur, "$")
}

func compareAt(base, cur *Node, path string) []Diff {
	if base == nil || cur == nil {
		return nil
	}
	// Unknown is the empty-array item shape; nothing can be said.
	if base.Kind == KindUnknown || cur.Kind == KindUnknown {
		return nil
	}
	if base.Kind != cur.Kind {
		return []Diff{{
			Path: path,
			Kind: DiffTypeChanged,
			From: base.Kind.String(),
			To:   cur.Kind.String(),
		}}
	}

	var diffs []Diff
	if base.Nullable != cur.Nullable {
		diffs = append(diffs, Diff{
			Path: path,
			Kind: DiffNullChanged,
			From: nullability(base.Nullable),
			To:   nullability(cur.Nullable),
		})
	}

	switch base.Kind {
	case KindObject:
		for _, name := range sortedFieldNames(base.Fields) {
			fieldPath := path + "." + name
			if curField, ok := cur.Fields[name]; ok {
				diffs = append(diffs, compareAt(base.Fields[name], curField, fieldPath)...)
			} else {
				diffs = append(diffs, Diff{Path: fieldPath, Kind: DiffRemoved, From: base.Fields[name].Kind.String()})
			}
		}
		for _, name := range sortedFieldNames(cur.Fields) {
			if _, ok := base.Fields[name]; !ok {
				diffs = append(diffs, Diff{Path: path + "." + name, Kind: DiffAdded, To: cur.Fields[name].Kind.String()})
			}
		}
	case KindArray:
		diffs = append(diffs, compareAt(base.Item, cur.Item, path+"[]")...)
	}
	return diffs
}

func nullability(nullable bool) string {
	if nullable {
		return "nullable"
	}
	return "required"
}

func sortedFieldNames(fields map[string]*Node) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
