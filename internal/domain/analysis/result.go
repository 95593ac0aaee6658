package analysis

// Result is the validated analysis output returned across the system boundary.
type Result struct {
	Text   string  `json:"text"`
	Tables []Table `json:"tables"`
	Charts []Chart `json:"charts"`
}

// Table is a named list of row mappings.
type Table struct {
	Name string           `json:"name"`
	Data []map[string]any `json:"data"`
}

// Chart describes a chart without rendering it.
type Chart struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// NewResult returns a Result with empty, non-nil collections.
func NewResult(text string) Result {
	return Result{Text: text, Tables: []Table{}, Charts: []Chart{}}
}
