package workflow

import (
	"regexp"
	"strings"
)

// referenceToken matches a bare reference string: $stepId, optionally
// followed by one or more .field path segments.
var referenceToken = regexp.MustCompile(`^\$([a-zA-Z_][a-zA-Z0-9_]*)((?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)$`)

// isReference reports whether s is shaped like a reference token. It does
// not check that the referenced step or path actually exists.
func isReference(s string) bool {
	return referenceToken.MatchString(s)
}

// resolveReferences walks v, replacing every string Value shaped like a
// reference token with the dereferenced Value drawn from outputs. Maps and
// sequences are walked recursively; everything else passes through
// unchanged. outputs maps a step id to that step's already-committed
// output tree, so a reference can only ever point backward to a
// completed step, never forward or sideways into one that has not run.
func resolveReferences(v Value, outputs map[string]Value) (Value, error) {
	switch v.Kind {
	case KindString:
		if !isReference(v.Str) {
			return v, nil
		}
		m := referenceToken.FindStringSubmatch(v.Str)
		stepID, path := m[1], m[2]
		out, ok := outputs[stepID]
		if !ok {
			return Value{}, &EngineError{Code: ErrCodeReferenceUnresolved, Message: "reference " + v.Str + " points to an unknown or not-yet-completed step"}
		}
		if path == "" {
			return out, nil
		}
		segments := strings.Split(strings.TrimPrefix(path, "."), ".")
		cur := out
		for _, seg := range segments {
			next, ok := cur.Get(seg)
			if !ok {
				return Value{}, &EngineError{Code: ErrCodeReferenceUnresolved, Message: "reference " + v.Str + " has no field " + seg}
			}
			cur = next
		}
		return cur, nil
	case KindSeq:
		out := make([]Value, len(v.Seq))
		for i, item := range v.Seq {
			resolved, err := resolveReferences(item, outputs)
			if err != nil {
				return Value{}, err
			}
			out[i] = resolved
		}
		return Value{Kind: KindSeq, Seq: out}, nil
	case KindMap:
		out := NewMap()
		for _, k := range v.Keys {
			resolved, err := resolveReferences(v.Fields[k], outputs)
			if err != nil {
				return Value{}, err
			}
			out.Set(k, resolved)
		}
		return out, nil
	default:
		return v, nil
	}
}
