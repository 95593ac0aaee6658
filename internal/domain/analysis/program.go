package analysis

import "time"

// DefaultDeadline is the wall-clock budget applied when neither the request nor the
// engine configuration sets one.
const DefaultDeadline = 10 * time.Second

// Language identifies the dialect a generated program is written in.
type Language string

const (
	// LanguageJavaScript programs run in the in-process script engine.
	LanguageJavaScript Language = "javascript"
	// LanguagePython programs run inside an isolated container.
	LanguagePython Language = "python"
)

// ParseLanguage maps user supplied aliases onto a Language.
func ParseLanguage(raw string) (Language, bool) {
	switch raw {
	case "javascript", "js", "ecmascript":
		return LanguageJavaScript, true
	case "python", "py", "python3":
		return LanguagePython, true
	default:
		return "", false
	}
}

// Limits describes optional resource boundaries for a single execution.
//
// A zero value Limits defers to the engine defaults.
type Limits struct {
	// Deadline caps how long the program may run. Zero means the engine default.
	Deadline time.Duration
	// MemoryLimitBytes caps memory for engines that can enforce it. Zero means the engine default.
	MemoryLimitBytes int64
}

// Normalize clamps negative values to zero.
func (l Limits) Normalize() Limits {
	if l.Deadline < 0 {
		l.Deadline = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	return l
}

// Merge returns defaults overridden by the positive fields of l.
func (l Limits) Merge(defaults Limits) Limits {
	effective := defaults.Normalize()
	overrides := l.Normalize()
	if overrides.Deadline > 0 {
		effective.Deadline = overrides.Deadline
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}
	if effective.Deadline == 0 {
		effective.Deadline = DefaultDeadline
	}
	return effective
}

// Clamp lowers l to the positive fields of ceiling. A zero memory limit in l
// means unbounded, so it is raised to the ceiling when one is set.
func (l Limits) Clamp(ceiling Limits) Limits {
	ceiling = ceiling.Normalize()
	if ceiling.Deadline > 0 && (l.Deadline <= 0 || l.Deadline > ceiling.Deadline) {
		l.Deadline = ceiling.Deadline
	}
	if ceiling.MemoryLimitBytes > 0 && (l.MemoryLimitBytes <= 0 || l.MemoryLimitBytes > ceiling.MemoryLimitBytes) {
		l.MemoryLimitBytes = ceiling.MemoryLimitBytes
	}
	return l
}

// Ceiling returns l with zero fields filled from defaults. Without an explicit
// maximum a caller can only tighten the configured defaults.
func (l Limits) Ceiling(defaults Limits) Limits {
	l = l.Normalize()
	defaults = defaults.Normalize()
	if l.Deadline == 0 {
		l.Deadline = defaults.Deadline
	}
	if l.MemoryLimitBytes == 0 {
		l.MemoryLimitBytes = defaults.MemoryLimitBytes
	}
	return l
}

// Program is model-generated source code. It is untrusted and may be malformed.
type Program struct {
	ID       string
	Language Language
	Source   string
	Limits   Limits
}
