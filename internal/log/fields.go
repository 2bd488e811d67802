// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"
	FieldExitCode  = "exit_code"
	FieldPID       = "pid"
	FieldStderr    = "stderr"

	// Job fields
	FieldMode   = "mode"
	FieldSource = "source"
	FieldKind   = "kind"
	FieldState  = "state"

	// Artifact fields
	FieldPath  = "path"
	FieldBytes = "bytes"
)
