package ir

// Version constants for the store schema and the tool.
const (
	// SchemaVersion is the relational schema version recorded in user_version.
	SchemaVersion = 1

	// ToolVersion is the kinspect release version.
	ToolVersion = "0.1.0"
)
