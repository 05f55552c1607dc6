// Package coreerr defines the conversion pipeline's error taxonomy: a
// single Kind enum covering every way ingestion, conversion, and extension
// loading can go wrong, carried by one CoreError type. Only Kind.Fatal()
// kinds abort a run; everything else is recorded on the warning sink and
// the run proceeds.
package coreerr

import "fmt"

// Kind enumerates the ten named error conditions the pipeline
// distinguishes.
type Kind string

const (
	// InputUnreadable means the input directory, a manifest file, or the
	// upstream renderer invocation could not be read. Fatal.
	InputUnreadable Kind = "InputUnreadable"

	// MalformedDocument means one YAML document failed to parse. The
	// document is skipped; the run continues.
	MalformedDocument Kind = "MalformedDocument"

	// UnknownKind means a manifest's kind is not recognised by the core
	// pipeline or any loaded extension.
	UnknownKind Kind = "UnknownKind"

	// UnsupportedKind means a manifest's kind is recognised but
	// deliberately not converted (CronJob, HPA, PodDisruptionBudget).
	// Emitted once per kind.
	UnsupportedKind Kind = "UnsupportedKind"

	// MissingReference means a ConfigMap, Secret, or Service a manifest
	// refers to is absent from the index.
	MissingReference Kind = "MissingReference"

	// ExtensionLoadFailure means an extension's .so file failed to open or
	// its New symbol did not resolve to a recognised capability. The
	// extension is dropped.
	ExtensionLoadFailure Kind = "ExtensionLoadFailure"

	// ExtensionRuntimeFailure means an extension call (Convert/Transform/
	// Rewrite) panicked or returned an error. That call's result is
	// discarded.
	ExtensionRuntimeFailure Kind = "ExtensionRuntimeFailure"

	// ConfigMigrationNotice means the project config was rewritten from a
	// legacy key layout on load. Not an error — a stderr notice.
	ConfigMigrationNotice Kind = "ConfigMigrationNotice"

	// ConvergenceExhaustion means converter fan-out exceeded its bounded
	// cycle count. The pipeline proceeds with whatever state it reached.
	ConvergenceExhaustion Kind = "ConvergenceExhaustion"

	// MalformedProjectConfig means the persisted project-config file
	// exists but failed to parse. Fatal, alongside InputUnreadable.
	MalformedProjectConfig Kind = "MalformedProjectConfig"
)

// Fatal reports whether a CoreError of this kind must abort the run rather
// than being recorded as a warning.
func (k Kind) Fatal() bool {
	return k == InputUnreadable || k == MalformedProjectConfig
}

// CoreError is the pipeline's single error type: a Kind tag plus the
// underlying cause and a human-readable detail.
type CoreError struct {
	Kind   Kind
	Detail string
	Err    error
}

// New constructs a CoreError with a formatted detail and no wrapped cause.
func New(kind Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs a CoreError wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CoreError) Unwrap() error { return e.Err }
