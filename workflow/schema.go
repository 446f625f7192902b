package workflow

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Structural schemas for the wire documents described in spec §3/§6. One
// recursive, schema-driven validator (gojsonschema) covers both documents
// rather than a hand-rolled walker per document, per spec §4.A: "It is
// schema-driven, not handwritten per document."
const workflowSchemaJSON = `{
  "type": "object",
  "required": ["workflow", "steps"],
  "properties": {
    "workflow": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "params": {"type": "object"},
          "parent_step_ids": {
            "type": "array",
            "items": {"type": "string"}
          },
          "resource_requirements": {
            "type": "object",
            "properties": {
              "ram_mb": {"type": "integer"},
              "gpu": {"type": "boolean"},
              "qubits": {"type": "integer"},
              "gas_limit": {"type": "integer"},
              "timeout_ms": {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

const receiptSchemaJSON = `{
  "type": "object",
  "required": ["step_id", "status"],
  "properties": {
    "step_id": {"type": "string", "minLength": 1},
    "status": {"type": "string", "enum": ["success", "error", "degraded"]},
    "output": {"type": "object"},
    "error": {
      "type": "object",
      "required": ["code", "message", "retryable"],
      "properties": {
        "code": {"type": "string"},
        "message": {"type": "string"},
        "retryable": {"type": "boolean"}
      }
    },
    "execution_metadata": {
      "type": "object",
      "properties": {
        "timestamp": {"type": "string"},
        "latency_ms": {"type": "integer", "minimum": 0},
        "adapter_version": {"type": "string"}
      }
    },
    "merkle_proof": {"type": "string"}
  }
}`

var (
	workflowSchemaLoader = gojsonschema.NewStringLoader(workflowSchemaJSON)
	receiptSchemaLoader  = gojsonschema.NewStringLoader(receiptSchemaJSON)
)

// ValidateWorkflowSchema validates a workflow document against the
// structural schema. Returns an *EngineError with a JSON-path-style
// Location on the first (or summarized) violation.
func ValidateWorkflowSchema(data []byte) error {
	return validateAgainst(workflowSchemaLoader, data, ErrCodeWorkflowSchemaInvalid)
}

// ValidateReceiptSchema validates a receipt document (or an in-memory
// Receipt re-marshaled to JSON) against the structural schema.
func ValidateReceiptSchema(data []byte) error {
	return validateAgainst(receiptSchemaLoader, data, ErrCodeInvalidReceipt)
}

func validateAgainst(schema gojsonschema.JSONLoader, data []byte, code ErrCode) error {
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schema, docLoader)
	if err != nil {
		return &EngineError{Code: code, Message: fmt.Sprintf("schema validation error: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	descs := make([]string, 0, len(result.Errors()))
	loc := ""
	for i, e := range result.Errors() {
		if i == 0 {
			loc = "$." + strings.ReplaceAll(e.Field(), "(root).", "")
		}
		descs = append(descs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &EngineError{
		Code:     code,
		Message:  strings.Join(descs, "; "),
		Location: loc,
	}
}
