package entities

// ValidationResult represents the outcome of a manifest validation.
type ValidationResult struct {
	Errors []ValidationError `json:"errors,omitempty"`
	Valid  bool              `json:"valid"`
}

// ValidationError is a single violation, located by field path.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
