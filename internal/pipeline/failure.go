// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"strings"

	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/watchdog"
)

// Kind classifies a terminal failure.
type Kind string

const (
	KindTimeout           Kind = "Timeout"
	KindProcessFailure    Kind = "ProcessFailure"
	KindAuthOrRateLimited Kind = "AuthOrRateLimited"
	KindMissingArtifact   Kind = "MissingArtifact"
	KindOversizeArtifact  Kind = "OversizeArtifact"
	KindTranscodeFailure  Kind = "TranscodeFailure"
	KindUnexpected        Kind = "Unexpected"
)

// Kinds lists every failure kind.
var Kinds = []Kind{
	KindTimeout, KindProcessFailure, KindAuthOrRateLimited, KindMissingArtifact,
	KindOversizeArtifact, KindTranscodeFailure, KindUnexpected,
}

// Failure is the error type of a terminal job failure.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind Kind, err error) error {
	return &Failure{Kind: kind, Err: err}
}

// KindOf maps err to a failure kind. nil maps to the empty kind; errors that
// carry no kind become Unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, watchdog.ErrTimeout):
		return KindTimeout
	case errors.Is(err, artifact.ErrMissing):
		return KindMissingArtifact
	case errors.Is(err, transcode.ErrOversize):
		return KindOversizeArtifact
	case errors.Is(err, transcode.ErrFailed):
		return KindTranscodeFailure
	}
	return KindUnexpected
}

// Retryable reports whether another download attempt may follow.
func (k Kind) Retryable() bool { return k == KindProcessFailure }

var userMessages = map[Kind]string{
	KindTimeout:           "Download timeout. Try again later.",
	KindAuthOrRateLimited: "Login required or rate limit. Update cookies and retry.",
	KindProcessFailure:    "Failed to download. Try again later.",
	KindMissingArtifact:   "File was not downloaded. It may exceed the limit or be unavailable.",
	KindOversizeArtifact:  "File still exceeds the delivery limit after transcoding.",
	KindTranscodeFailure:  "Failed to transcode file to fit the delivery limit.",
	KindUnexpected:        "Unexpected error. Try again later.",
}

// UserMessage returns the one end-user text for kind.
func UserMessage(kind Kind) string {
	if m, ok := userMessages[kind]; ok {
		return m
	}
	return userMessages[KindUnexpected]
}

// authMarkers are matched case-insensitively against the downloader's
// diagnostic output. The wording belongs to yt-dlp and changes between
// releases; keep this list in step with it.
var authMarkers = []string{
	"login required",
	"locked behind the login page",
	"rate-limit",
	"rate limit",
	"sign in to confirm",
	"http error 429",
	"too many requests",
}

// Classify maps the diagnostic text of the last failed attempt to
// AuthOrRateLimited or ProcessFailure.
func Classify(lastErrorText string) Kind {
	lower := strings.ToLower(lastErrorText)
	for _, m := range authMarkers {
		if strings.Contains(lower, m) {
			return KindAuthOrRateLimited
		}
	}
	return KindProcessFailure
}
