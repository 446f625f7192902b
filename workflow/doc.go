// Package workflow implements a deterministic, content-addressed workflow
// execution runtime. A workflow is a directed acyclic graph of typed steps;
// each step is dispatched to a pluggable Adapter that produces a signed
// receipt. A successful run yields a Merkle root over its receipts, and
// re-running the same workflow on the same inputs yields the same root.
package workflow
