// Package delta implements the sync engine's diff/apply/merge algebra over
// generic JSON documents: computing a Delta between two values, applying
// one to reproduce the target, and three-way merging two divergent copies
// against a common ancestor. The algorithm itself is hand-rolled (no
// third-party library gives array insert/remove/move/copy semantics that
// round-trip exactly the way an appliable, mergeable delta needs);
// gojsondiff is reserved for human-readable diff rendering in pkg/report,
// which only needs to show a diff to a human, not apply or merge one.
package delta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/relaythread/syncengine/pkg/model"
)

// Op is one of the five JSON-patch-style operations a Change may carry.
type Op string

const (
	OpAdd     Op = "ADD"
	OpRemove  Op = "REMOVE"
	OpReplace Op = "REPLACE"
	OpMove    Op = "MOVE"
	OpCopy    Op = "COPY"
)

// Change is one step of a Delta: a JSON-pointer-style Path, the Op applied
// there, and Value/From depending on the op.
type Change struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	From  string `json:"from,omitempty"`
}

// Delta is an ordered sequence of Changes that, applied in order, transform
// a "before" value into an "after" value.
type Delta []Change

// Conflict is one path where a three-way merge found both sides changed to
// different values.
type Conflict struct {
	Path        string `json:"path"`
	LocalValue  any    `json:"local_value"`
	RemoteValue any    `json:"remote_value"`
}

// Diff produces the Delta that transforms before into after.
func Diff(before, after any) Delta {
	var out Delta
	diffValue("", before, after, &out)
	return out
}

func diffValue(path string, before, after any, out *Delta) {
	if reflect.DeepEqual(before, after) {
		return
	}

	bm, bIsMap := before.(map[string]any)
	am, aIsMap := after.(map[string]any)
	if bIsMap && aIsMap {
		keys := unionKeys(bm, am)
		for _, k := range keys {
			bv, bok := bm[k]
			av, aok := am[k]
			childPath := joinPath(path, k)
			switch {
			case !bok && aok:
				*out = append(*out, Change{Op: OpAdd, Path: childPath, Value: av})
			case bok && !aok:
				*out = append(*out, Change{Op: OpRemove, Path: childPath})
			default:
				diffValue(childPath, bv, av, out)
			}
		}
		return
	}

	ba, bIsArr := before.([]any)
	aa, aIsArr := after.([]any)
	if bIsArr && aIsArr {
		n := len(ba)
		if len(aa) < n {
			n = len(aa)
		}
		for i := 0; i < n; i++ {
			diffValue(joinPath(path, strconv.Itoa(i)), ba[i], aa[i], out)
		}
		switch {
		case len(aa) > len(ba):
			for i := len(ba); i < len(aa); i++ {
				*out = append(*out, Change{Op: OpAdd, Path: joinPath(path, strconv.Itoa(i)), Value: aa[i]})
			}
		case len(ba) > len(aa):
			for i := len(ba) - 1; i >= len(aa); i-- {
				*out = append(*out, Change{Op: OpRemove, Path: joinPath(path, strconv.Itoa(i))})
			}
		}
		return
	}

	// Primitive inequality, or a type mismatch that can't be navigated
	// into: a single wholesale replace at this path.
	*out = append(*out, Change{Op: OpReplace, Path: path, Value: after})
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Apply executes delta against state in order and returns the resulting
// value. state is never mutated; the result is a fresh value sharing no
// backing maps/slices with it on any mutated branch.
func Apply(state any, delta Delta) (any, error) {
	root := deepCopy(state)
	for _, c := range delta {
		var err error
		root, err = applyChange(root, c)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

func applyChange(root any, c Change) (any, error) {
	segs, err := splitPath(c.Path)
	if err != nil {
		return nil, model.Wrap(model.ErrInvalidDelta, "malformed path", err).WithPath(c.Path)
	}

	switch c.Op {
	case OpAdd:
		if len(segs) == 0 {
			return c.Value, nil
		}
		return navigateAndMutate(root, segs, addMutator(c.Value))
	case OpRemove:
		if len(segs) == 0 {
			return nil, nil
		}
		return navigateAndMutate(root, segs, removeMutator())
	case OpReplace:
		if len(segs) == 0 {
			return c.Value, nil
		}
		return navigateAndMutate(root, segs, replaceMutator(c.Value))
	case OpMove:
		fromSegs, err := splitPath(c.From)
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidDelta, "malformed from-path", err).WithPath(c.From)
		}
		val, err := getAtPath(root, fromSegs)
		if err != nil {
			return nil, err
		}
		root, err = navigateAndMutate(root, fromSegs, removeMutator())
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return val, nil
		}
		return navigateAndMutate(root, segs, addMutator(val))
	case OpCopy:
		fromSegs, err := splitPath(c.From)
		if err != nil {
			return nil, model.Wrap(model.ErrInvalidDelta, "malformed from-path", err).WithPath(c.From)
		}
		val, err := getAtPath(root, fromSegs)
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return val, nil
		}
		return navigateAndMutate(root, segs, addMutator(val))
	default:
		return nil, model.NewError(model.ErrInvalidDelta, "unknown op "+string(c.Op)).WithPath(c.Path)
	}
}

type mutator func(parent any, key string) (any, error)

func addMutator(value any) mutator {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			p[key] = value
			return p, nil
		case []any:
			idx, ok := arrayIndex(p, key, true)
			if !ok {
				return nil, model.NewError(model.ErrInvalidDelta, "array index out of range").WithPath(key)
			}
			out := make([]any, 0, len(p)+1)
			out = append(out, p[:idx]...)
			out = append(out, value)
			out = append(out, p[idx:]...)
			return out, nil
		default:
			return nil, model.NewError(model.ErrInvalidDelta, "cannot add into non-container")
		}
	}
}

func removeMutator() mutator {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if _, ok := p[key]; !ok {
				return nil, model.NewError(model.ErrInvalidDelta, "remove: key not found").WithPath(key)
			}
			delete(p, key)
			return p, nil
		case []any:
			idx, ok := arrayIndex(p, key, false)
			if !ok {
				return nil, model.NewError(model.ErrInvalidDelta, "remove: index out of range").WithPath(key)
			}
			out := make([]any, 0, len(p)-1)
			out = append(out, p[:idx]...)
			out = append(out, p[idx+1:]...)
			return out, nil
		default:
			return nil, model.NewError(model.ErrInvalidDelta, "cannot remove from non-container")
		}
	}
}

func replaceMutator(value any) mutator {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			p[key] = value
			return p, nil
		case []any:
			idx, ok := arrayIndex(p, key, false)
			if !ok {
				return nil, model.NewError(model.ErrInvalidDelta, "replace: index out of range").WithPath(key)
			}
			p[idx] = value
			return p, nil
		default:
			return nil, model.NewError(model.ErrInvalidDelta, "cannot replace into non-container")
		}
	}
}

// navigateAndMutate walks node along segs, applies mutate at the parent of
// the final segment, and rebuilds node on the way back up so reallocated
// slices propagate to the root.
func navigateAndMutate(node any, segs []string, mutate mutator) (any, error) {
	if len(segs) == 0 {
		return nil, model.NewError(model.ErrInvalidDelta, "empty path segment list")
	}
	key := segs[0]
	if len(segs) == 1 {
		return mutate(node, key)
	}
	child, err := getChild(node, key)
	if err != nil {
		return nil, err
	}
	newChild, err := navigateAndMutate(child, segs[1:], mutate)
	if err != nil {
		return nil, err
	}
	return setChild(node, key, newChild)
}

func getAtPath(node any, segs []string) (any, error) {
	cur := node
	for _, key := range segs {
		child, err := getChild(cur, key)
		if err != nil {
			return nil, err
		}
		cur = child
	}
	return cur, nil
}

func getChild(node any, key string) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		if !ok {
			return nil, model.NewError(model.ErrInvalidDelta, "path not found").WithPath(key)
		}
		return v, nil
	case []any:
		idx, ok := arrayIndex(n, key, false)
		if !ok {
			return nil, model.NewError(model.ErrInvalidDelta, "array index out of range").WithPath(key)
		}
		return n[idx], nil
	default:
		return nil, model.NewError(model.ErrInvalidDelta, "cannot navigate into scalar").WithPath(key)
	}
}

func setChild(node any, key string, value any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		n[key] = value
		return n, nil
	case []any:
		idx, ok := arrayIndex(n, key, false)
		if !ok {
			return nil, model.NewError(model.ErrInvalidDelta, "array index out of range").WithPath(key)
		}
		n[idx] = value
		return n, nil
	default:
		return nil, model.NewError(model.ErrInvalidDelta, "cannot navigate into scalar").WithPath(key)
	}
}

// arrayIndex parses key as an array index. allowAppend permits idx==len(arr)
// (an ADD past the end means "append").
func arrayIndex(arr []any, key string, allowAppend bool) (int, bool) {
	if key == "-" {
		return len(arr), true
	}
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 {
		return 0, false
	}
	max := len(arr) - 1
	if allowAppend {
		max = len(arr)
	}
	if idx > max {
		return 0, false
	}
	return idx, true
}

// joinPath appends an escaped key to a JSON-pointer-style path.
func joinPath(base, key string) string {
	key = strings.ReplaceAll(key, "~", "~0")
	key = strings.ReplaceAll(key, "/", "~1")
	return base + "/" + key
}

// splitPath parses a JSON-pointer-style path ("" for root) into its
// unescaped segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, model.NewError(model.ErrInvalidDelta, "path must start with /")
	}
	raw := strings.Split(path[1:], "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ReplaceAll(s, "~1", "/")
		s = strings.ReplaceAll(s, "~0", "~")
		segs[i] = s
	}
	return segs, nil
}

// ThreeWayMerge merges local and remote against their common ancestor
// base. Per-path conflicts (both sides changed to different values) are
// reported rather than resolved; the base value is kept at a conflicted
// path in the merged result.
func ThreeWayMerge(base, local, remote any) (any, []Conflict) {
	var conflicts []Conflict
	merged := mergeValue("", base, local, remote, &conflicts)
	return merged, conflicts
}

func mergeValue(path string, base, local, remote any, conflicts *[]Conflict) any {
	if reflect.DeepEqual(local, remote) {
		return local
	}
	if reflect.DeepEqual(base, local) {
		return remote
	}
	if reflect.DeepEqual(base, remote) {
		return local
	}

	bm, bIsMap := base.(map[string]any)
	lm, lIsMap := local.(map[string]any)
	rm, rIsMap := remote.(map[string]any)
	if lIsMap && rIsMap {
		if !bIsMap {
			bm = map[string]any{}
		}
		out := make(map[string]any, len(lm)+len(rm))
		for _, k := range unionKeys3(bm, lm, rm) {
			childPath := joinPath(path, k)
			out[k] = mergeValue(childPath, bm[k], lm[k], rm[k], conflicts)
		}
		return out
	}

	// Leaf (or non-object) conflict: both sides changed, to different
	// values, and at least one side isn't a plain object to recurse into.
	*conflicts = append(*conflicts, Conflict{Path: path, LocalValue: local, RemoteValue: remote})
	return base
}

func unionKeys3(a, b, c map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b)+len(c))
	keys := make([]string, 0, len(a)+len(b)+len(c))
	add := func(m map[string]any) {
		for k := range m {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	add(a)
	add(b)
	add(c)
	sort.Strings(keys)
	return keys
}

// Optimize removes ADD-then-REMOVE pairs at the same adjacent path and
// collapses adjacent REPLACEs at the same path to the last value.
func Optimize(delta Delta) Delta {
	out := make(Delta, 0, len(delta))
	for _, c := range delta {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Path == c.Path {
				if last.Op == OpAdd && c.Op == OpRemove {
					out = out[:len(out)-1]
					continue
				}
				if last.Op == OpReplace && c.Op == OpReplace {
					out[len(out)-1] = c
					continue
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// Checksum returns a stable content hash of value: canonical JSON (sorted
// object keys) hashed with SHA-256. crypto/sha256 is standard library
// because no dependency in the pack provides content hashing; every
// structural/ordering concern above it (canonical key order) is delta's
// own logic, not a library's.
func Checksum(value any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, value)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(b)
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return val
	}
}
