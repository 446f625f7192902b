package workflow

import "sync"

// ReceiptError is the structured error payload carried on a failed
// receipt. Unlike EngineError, its Code is an opaque string: adapters own
// their own error vocabularies. The engine records Retryable but never
// retries on it; an adapter wrapper such as the adapters/retry decorator
// is what reads it.
type ReceiptError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ExecutionMetadata is informational timing/provenance attached to a
// receipt. It is part of the receipt's canonical leaf bytes (only
// merkle_proof is elided), so a receipt whose timestamp or latency
// differs between two runs also yields a different leaf hash and root.
type ExecutionMetadata struct {
	Timestamp      string `json:"timestamp,omitempty"`
	LatencyMs      int64  `json:"latency_ms,omitempty"`
	AdapterVersion string `json:"adapter_version,omitempty"`
}

// Receipt is the record an Adapter produces for one executed step.
type Receipt struct {
	StepID            string             `json:"step_id"`
	Status            string             `json:"status"`
	Output            Value              `json:"output,omitempty"`
	Error             *ReceiptError      `json:"error,omitempty"`
	ExecutionMetadata *ExecutionMetadata `json:"execution_metadata,omitempty"`
	MerkleProof       string             `json:"merkle_proof,omitempty"`
}

const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusDegraded = "degraded"
)

// asValue renders a Receipt as the same Value tree canonicalLeafBytes
// operates on, so the hashing path and the schema-validation path share
// one representation of "what a receipt is".
func (r Receipt) asValue() Value {
	v := NewMap()
	v.Set("step_id", String(r.StepID))
	v.Set("status", String(r.Status))
	if !r.Output.IsNull() {
		v.Set("output", r.Output)
	}
	if r.Error != nil {
		e := NewMap()
		e.Set("code", String(r.Error.Code))
		e.Set("message", String(r.Error.Message))
		e.Set("retryable", Bool(r.Error.Retryable))
		v.Set("error", e)
	}
	if r.ExecutionMetadata != nil {
		m := NewMap()
		if r.ExecutionMetadata.Timestamp != "" {
			m.Set("timestamp", String(r.ExecutionMetadata.Timestamp))
		}
		m.Set("latency_ms", Int(r.ExecutionMetadata.LatencyMs))
		if r.ExecutionMetadata.AdapterVersion != "" {
			m.Set("adapter_version", String(r.ExecutionMetadata.AdapterVersion))
		}
		v.Set("execution_metadata", m)
	}
	if r.MerkleProof != "" {
		v.Set("merkle_proof", String(r.MerkleProof))
	}
	return v
}

// receiptStore accumulates one Receipt per step, in append order, and
// maintains the Merkle accumulator over their canonical leaf bytes. A
// step's receipt may be appended at most once; the "reject on duplicate"
// policy mirrors the adapter type registry's.
type receiptStore struct {
	mu       sync.Mutex
	acc      *merkleAccumulator
	byStepID map[string]int // step id -> leaf index
	ordered  []Receipt
}

func newReceiptStore() *receiptStore {
	return &receiptStore{
		acc:      newMerkleAccumulator(),
		byStepID: make(map[string]int),
	}
}

// append commits r to the store, stamping its MerkleProof field from the
// freshly computed leaf hash, and returns the stored copy.
func (s *receiptStore) append(r Receipt) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byStepID[r.StepID]; exists {
		return Receipt{}, &EngineError{Code: ErrCodeInvalidReceipt, StepID: r.StepID, Message: ErrReceiptAlreadyAppended.Error(), Cause: ErrReceiptAlreadyAppended}
	}

	canonical, err := canonicalLeafBytes(r.asValue())
	if err != nil {
		return Receipt{}, &EngineError{Code: ErrCodeInvalidReceipt, StepID: r.StepID, Message: "canonicalization failed: " + err.Error(), Cause: err}
	}
	idx := s.acc.append(canonical)
	r.MerkleProof = encodeProof(s.acc.leaves[idx])

	s.byStepID[r.StepID] = idx
	s.ordered = append(s.ordered, r)
	return r, nil
}

// root returns the current Merkle root over every receipt appended so far.
func (s *receiptStore) root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.root()
}

// lookup returns the receipt committed for stepID, if any.
func (s *receiptStore) lookup(stepID string) (Receipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byStepID[stepID]
	if !ok {
		return Receipt{}, false
	}
	return s.ordered[idx], true
}

// proofAt returns the full Merkle inclusion proof for stepID's receipt,
// the only way to recover the authentication path once MerkleProof on the
// Receipt itself has been reduced to the bare leaf hash.
func (s *receiptStore) proofAt(stepID string) (*proof, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byStepID[stepID]
	if !ok {
		return nil, false
	}
	return s.acc.proofAt(idx), true
}

// all returns every committed receipt, in append order.
func (s *receiptStore) all() []Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Receipt, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// verify recomputes the Merkle tree from a standalone receipt sequence
// (e.g. loaded from storage for replay) and reports, per step, whether
// that receipt's leaf verifies under expectedRoot, without needing a live
// receiptStore or invoking any adapter.
func verify(receipts []Receipt, expectedRoot string) ([]ReceiptVerification, error) {
	acc := newMerkleAccumulator()
	for _, r := range receipts {
		canonical, err := canonicalLeafBytes(r.asValue())
		if err != nil {
			return nil, &EngineError{Code: ErrCodeInvalidReceipt, StepID: r.StepID, Message: "canonicalization failed: " + err.Error(), Cause: err}
		}
		acc.append(canonical)
	}

	out := make([]ReceiptVerification, len(receipts))
	for i, r := range receipts {
		p := acc.proofAt(i)
		out[i] = ReceiptVerification{StepID: r.StepID, Verified: p != nil && p.verify(expectedRoot)}
	}
	return out, nil
}
