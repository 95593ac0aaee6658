package analysis

// Request binds one generated program to one dataset.
type Request struct {
	ID      string
	Dataset Dataset
	Program Program
}

// Report captures the outcome of executing a Request.
//
// Result is set only when the program succeeded and its payload normalized; Err is
// the typed core error otherwise. Outcome is kept for diagnostics (duration, logs).
type Report struct {
	Request Request
	Outcome Outcome
	Result  *Result
	Err     error
}
