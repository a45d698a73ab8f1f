package flavia

import "errors"

// Sentinel errors reserved for programmer-facing failures (store I/O,
// configuration, authentication). Tool-level failures are never Go errors:
// they are plain "Error: ..."-prefixed strings returned as tool output so
// the agent loop can react to them without treating them as exceptions.
// No function in this module returns any of these values.
var (
	// ErrIndexMissing describes a retrieval attempted against a base_dir
	// with no built index.
	ErrIndexMissing = errors.New("flavia: index not built for this base_dir")

	// ErrCatalogMissing describes the state where no catalog has been
	// scanned yet.
	ErrCatalogMissing = errors.New("flavia: catalog not found, run a scan first")

	// ErrProfileNotFound describes a requested profile/subagent name with
	// no entry in .flavia/agents.yaml.
	ErrProfileNotFound = errors.New("flavia: agent profile not found")

	// ErrInvalidConfig describes invalid configuration values (e.g. a
	// compact_threshold outside [0,1] or an unrecognized converted_access_mode).
	ErrInvalidConfig = errors.New("flavia: invalid configuration")

	// ErrStoreClosed describes an operation on a closed index store.
	ErrStoreClosed = errors.New("flavia: index store is closed")

	// ErrLLMUnavailable describes a configured LLM/embedding provider that
	// is unreachable after exhausting retries.
	ErrLLMUnavailable = errors.New("flavia: LLM provider unavailable")

	// ErrMaxDepthExceeded describes a spawn request that would exceed an
	// agent's configured max_depth.
	ErrMaxDepthExceeded = errors.New("flavia: maximum agent spawn depth exceeded")
)
