package ir

// Version constants for the persisted schema and engine.
const (
	// SchemaVersion is the record schema version written into digests.
	SchemaVersion = "1"

	// EngineVersion is the agreement engine version.
	EngineVersion = "0.1.0"
)
