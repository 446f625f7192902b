package workflow

import "encoding/json"

// Workflow is a document describing a DAG of Steps. See spec §3/§6 for the
// wire format; ParseWorkflow decodes and validates a JSON document into
// this shape.
type Workflow struct {
	Name    string `json:"workflow"`
	Version string `json:"version,omitempty"`
	Steps   []Step `json:"steps"`
}

// ResourceRequirements are the recognized, optional resource hints a step
// may declare. Unknown options found on the wire are ignored rather than
// rejected.
type ResourceRequirements struct {
	RAMMB     int  `json:"ram_mb,omitempty"`
	GPU       bool `json:"gpu,omitempty"`
	Qubits    int  `json:"qubits,omitempty"`
	GasLimit  int  `json:"gas_limit,omitempty"`
	TimeoutMs int  `json:"timeout_ms,omitempty"`
}

// UnmarshalJSON decodes the recognized options and ignores any other keys,
// even when the enclosing document is decoded with unknown fields disallowed.
func (r *ResourceRequirements) UnmarshalJSON(data []byte) error {
	type plain ResourceRequirements
	return json.Unmarshal(data, (*plain)(r))
}

// Step is a single unit of work in a Workflow.
type Step struct {
	ID                   string                `json:"id"`
	Type                 string                `json:"type"`
	Params               Value                 `json:"params,omitempty"`
	ParentStepIDs        []string              `json:"parent_step_ids,omitempty"`
	ResourceRequirements *ResourceRequirements `json:"resource_requirements,omitempty"`

	// index is the step's position in Workflow.Steps, recorded by
	// ParseWorkflow. It breaks ties in topological order and is the
	// authoritative "declaration order" the scheduler's reorder buffer
	// depends on for determinism (spec §5 ordering guarantee #2).
	index int
}

// StepTypeDescriptor describes one capability an adapter claims to support.
type StepTypeDescriptor struct {
	Type          string `json:"type"`
	ParamSchema   Value  `json:"param_schema,omitempty"`
	Deterministic bool   `json:"deterministic"`
}

// AdapterManifest identifies an adapter and the step types it claims.
type AdapterManifest struct {
	ID        string               `json:"id"`
	Version   string               `json:"version"`
	StepTypes []StepTypeDescriptor `json:"step_types"`
}

// ParseWorkflow decodes and structurally validates a workflow document,
// stamping each step's declaration index for deterministic tie-breaking.
func ParseWorkflow(data []byte) (*Workflow, error) {
	if err := ValidateWorkflowSchema(data); err != nil {
		return nil, err
	}
	var w Workflow
	if err := unmarshalStrict(data, &w); err != nil {
		return nil, &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: err.Error()}
	}
	if w.Name == "" {
		return nil, &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "workflow: name is empty", Location: "$.workflow"}
	}
	seen := make(map[string]bool, len(w.Steps))
	for i := range w.Steps {
		w.Steps[i].index = i
		s := &w.Steps[i]
		if s.ID == "" {
			return nil, &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "step id is empty", Location: jsonPath(i, "id")}
		}
		if seen[s.ID] {
			return nil, &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "duplicate step id " + s.ID, Location: jsonPath(i, "id")}
		}
		seen[s.ID] = true
		if s.Type == "" {
			return nil, &EngineError{Code: ErrCodeWorkflowSchemaInvalid, Message: "step " + s.ID + ": type is empty", Location: jsonPath(i, "type")}
		}
	}
	return &w, nil
}

func jsonPath(stepIdx int, field string) string {
	return "$.steps[" + itoa(stepIdx) + "]." + field
}
