package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	CodeOK       ErrorCode = "OK"
	CodeUnknown  ErrorCode = "COMMON_000"
	CodeInternal ErrorCode = "COMMON_001"
	CodeNotFound ErrorCode = "COMMON_002"
	CodeIO       ErrorCode = "COMMON_003"
)

// Parameter-validation error codes. These are raised immediately at the point
// of misuse and never silently defaulted.
const (
	CodeShapeMismatch     ErrorCode = "PARAM_001"
	CodeInvalidParameter  ErrorCode = "PARAM_002"
	CodeUnsupportedOption ErrorCode = "PARAM_003"
)

// Structure-preparation error codes.
const (
	CodeFatalConfiguration ErrorCode = "PREP_001"
	CodeExternalTool       ErrorCode = "PREP_002"
	CodeStructureParse     ErrorCode = "PREP_003"
)

// Training error codes.
const (
	CodeCheckpoint ErrorCode = "TRAIN_001"
	CodeDivergence ErrorCode = "TRAIN_002"
)
