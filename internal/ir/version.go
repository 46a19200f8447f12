package ir

// Version constants for persisted records and the engine.
const (
	// RecordVersion is the container record format version.
	RecordVersion = "1"

	// EngineVersion is the assemblies engine version.
	EngineVersion = "0.1.0"
)
