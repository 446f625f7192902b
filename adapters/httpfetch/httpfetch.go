// Package httpfetch is a reference Adapter exercising the network
// capability surface: it claims the "http.fetch" step type and issues a
// single HTTP request per step, grounded on the teacher's HTTPTool
// (graph/tool/http.go).
package httpfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianflow/workflow/workflow"
)

const StepType = "http.fetch"

// Adapter issues GET/POST requests. It is not marked deterministic: two
// runs hitting a live endpoint are not guaranteed to see the same
// response, so its manifest entry declares Deterministic: false.
type Adapter struct {
	client *http.Client
}

// New returns an httpfetch Adapter using http.DefaultTransport.
func New() *Adapter {
	return &Adapter{client: &http.Client{}}
}

func (a *Adapter) Manifest() workflow.AdapterManifest {
	return workflow.AdapterManifest{
		ID:      "httpfetch",
		Version: "1.0.0",
		StepTypes: []workflow.StepTypeDescriptor{
			{Type: StepType, Deterministic: false},
		},
	}
}

func (a *Adapter) Validate(step workflow.Step, params workflow.Value) error {
	urlVal, ok := params.Get("url")
	if !ok || urlVal.Kind != workflow.KindString || urlVal.Str == "" {
		return fmt.Errorf("httpfetch: params.url is required")
	}
	if methodVal, ok := params.Get("method"); ok {
		m := strings.ToUpper(methodVal.Str)
		if m != "GET" && m != "POST" {
			return fmt.Errorf("httpfetch: unsupported method %q", methodVal.Str)
		}
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error { return nil }

func (a *Adapter) Execute(ctx context.Context, step workflow.Step, params workflow.Value) (workflow.Receipt, error) {
	start := time.Now()

	urlVal, _ := params.Get("url")
	method := "GET"
	if m, ok := params.Get("method"); ok && m.Str != "" {
		method = strings.ToUpper(m.Str)
	}

	var body io.Reader
	if b, ok := params.Get("body"); ok && b.Kind == workflow.KindString {
		body = bytes.NewBufferString(b.Str)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlVal.Str, body)
	if err != nil {
		return errorReceipt(step.ID, "httpfetch.bad_request", err.Error(), false, start), nil
	}
	if headers, ok := params.Get("headers"); ok && headers.Kind == workflow.KindMap {
		for _, k := range headers.Keys {
			if v, ok := headers.Fields[k]; ok && v.Kind == workflow.KindString {
				req.Header.Set(k, v.Str)
			}
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errorReceipt(step.ID, "httpfetch.request_failed", err.Error(), true, start), nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorReceipt(step.ID, "httpfetch.read_failed", err.Error(), true, start), nil
	}

	output := workflow.NewMap()
	output.Set("status_code", workflow.Int(int64(resp.StatusCode)))
	output.Set("body", workflow.String(string(respBody)))
	headersOut := workflow.NewMap()
	for key, values := range resp.Header {
		headersOut.Set(key, workflow.String(strings.Join(values, ", ")))
	}
	output.Set("headers", headersOut)

	return workflow.Receipt{
		StepID: step.ID,
		Status: workflow.StatusSuccess,
		Output: output,
		ExecutionMetadata: &workflow.ExecutionMetadata{
			LatencyMs:      time.Since(start).Milliseconds(),
			AdapterVersion: "httpfetch/1.0.0",
		},
	}, nil
}

func errorReceipt(stepID, code, msg string, retryable bool, start time.Time) workflow.Receipt {
	return workflow.Receipt{
		StepID: stepID,
		Status: workflow.StatusError,
		Error:  &workflow.ReceiptError{Code: code, Message: msg, Retryable: retryable},
		ExecutionMetadata: &workflow.ExecutionMetadata{
			LatencyMs:      time.Since(start).Milliseconds(),
			AdapterVersion: "httpfetch/1.0.0",
		},
	}
}
