package workflow

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/meridianflow/workflow/workflow/emit"
)

func itoa(i int) string { return strconv.Itoa(i) }

// unmarshalStrict decodes data into v, rejecting unknown fields. The
// schema validator (4.A) already enforces the document shape; this is a
// second, cheap line of defense against typos in hand-authored workflows.
func unmarshalStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// marshalForSchema renders a Receipt through the same Value.ToAny() path
// canonicalization uses, so schema validation sees exactly the JSON shape
// that will later be hashed.
func marshalForSchema(r Receipt) ([]byte, error) {
	return json.Marshal(r.asValue().ToAny())
}

func runEvent(runID, msg string, meta map[string]interface{}) emit.Event {
	return emit.Event{RunID: runID, Msg: msg, Meta: meta}
}
