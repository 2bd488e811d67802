// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the pipeline spans.
const (
	JobIDKey     = "job.id"
	JobModeKey   = "job.mode"
	JobSearchKey = "job.search"
	JobStateKey  = "job.state"

	AttemptKey    = "download.attempt"
	MaxAttemptKey = "download.max_attempts"
	ExitCodeKey   = "process.exit_code"

	ArtifactBytesKey = "artifact.bytes"
	TranscodeBinKey  = "transcode.bin"
	TranscodeOutKey  = "transcode.output_bytes"

	ErrorKindKey = "error.kind"

	HTTPMethodKey     = "http.method"
	HTTPRouteKey      = "http.route"
	HTTPStatusCodeKey = "http.status_code"
)

// JobAttributes describes an acquisition job.
func JobAttributes(id, mode string, search bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, id),
		attribute.String(JobModeKey, mode),
		attribute.Bool(JobSearchKey, search),
	}
}

// AttemptAttributes describes one downloader attempt.
func AttemptAttributes(attempt, maxAttempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttemptKey, attempt),
		attribute.Int(MaxAttemptKey, maxAttempts),
	}
}

// TranscodeAttributes describes a re-encode run.
func TranscodeAttributes(bin string, inputBytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeBinKey, bin),
		attribute.Int64(ArtifactBytesKey, inputBytes),
	}
}

// FailureAttributes describes a terminal failure.
func FailureAttributes(kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobStateKey, "failed"),
		attribute.String(ErrorKindKey, kind),
	}
}

// HTTPAttributes creates HTTP-related span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}
