package ir

// Version constants for the query payload format and the module.
const (
	// PayloadVersion is the version of the query payload wire format.
	PayloadVersion = "1"

	// ModuleVersion is the idxstore version reported by the CLI.
	ModuleVersion = "0.1.0"
)
