package workflow

import (
	"encoding/json"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"golang.org/x/text/unicode/norm"
)

// canonicalLeafBytes produces the deterministic byte string hashed into a
// Merkle leaf for a receipt, per the spec's canonicalization rule: the
// merkle_proof field itself is elided (it is not yet known while building
// the leaf it will become part of), every string is Unicode-NFC normalized,
// and the remaining JSON is serialized with RFC 8785 (JCS) canonical
// formatting so field order and number formatting never depend on map
// iteration or the Go version's float formatter.
func canonicalLeafBytes(receipt Value) ([]byte, error) {
	pruned := receipt.Clone()
	if pruned.Kind == KindMap {
		pruned = withoutField(pruned, "merkle_proof")
	}
	normalized := normalizeStrings(pruned)

	raw, err := json.Marshal(normalized.ToAny())
	if err != nil {
		return nil, err
	}
	return jsoncanonicalizer.Transform(raw)
}

func withoutField(v Value, field string) Value {
	out := NewMap()
	for _, k := range v.Keys {
		if k == field {
			continue
		}
		out.Set(k, v.Fields[k])
	}
	return out
}

// normalizeStrings walks v, replacing every string with its Unicode NFC
// normal form. Map keys are not normalized, so two keys that differ only
// in Unicode normalization form stay distinct keys.
func normalizeStrings(v Value) Value {
	switch v.Kind {
	case KindString:
		return String(norm.NFC.String(v.Str))
	case KindSeq:
		out := make([]Value, len(v.Seq))
		for i, item := range v.Seq {
			out[i] = normalizeStrings(item)
		}
		return Value{Kind: KindSeq, Seq: out}
	case KindMap:
		out := NewMap()
		for _, k := range v.Keys {
			out.Set(k, normalizeStrings(v.Fields[k]))
		}
		return out
	default:
		return v
	}
}
