// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/mediafetch/internal/artifact"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/watchdog"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"ERROR: [Instagram] x: login required", KindAuthOrRateLimited},
		{"This content is LOCKED BEHIND THE LOGIN PAGE", KindAuthOrRateLimited},
		{"Requested content is not available, rate-limit reached", KindAuthOrRateLimited},
		{"Sign in to confirm you're not a bot", KindAuthOrRateLimited},
		{"ERROR: HTTP Error 429: Too Many Requests", KindAuthOrRateLimited},
		{"ERROR: Unsupported URL: https://example.com", KindProcessFailure},
		{"", KindProcessFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), tt.text)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fail(KindAuthOrRateLimited, errors.New("x")), KindAuthOrRateLimited},
		{fmt.Errorf("wrapped: %w", fail(KindTimeout, nil)), KindTimeout},
		{fmt.Errorf("guard: %w", watchdog.ErrTimeout), KindTimeout},
		{fmt.Errorf("resolve: %w", artifact.ErrMissing), KindMissingArtifact},
		{transcode.ErrOversize, KindOversizeArtifact},
		{transcode.ErrFailed, KindTranscodeFailure},
		{errors.New("disk on fire"), KindUnexpected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestUserMessage_OnePerKind(t *testing.T) {
	seen := map[string]Kind{}
	for _, k := range Kinds {
		msg := UserMessage(k)
		assert.NotEmpty(t, msg)
		if prev, dup := seen[msg]; dup {
			t.Errorf("kinds %s and %s share message %q", prev, k, msg)
		}
		seen[msg] = k
	}
	assert.Equal(t, UserMessage(KindUnexpected), UserMessage("bogus"))
	assert.NotEqual(t, UserMessage(KindAuthOrRateLimited), UserMessage(KindProcessFailure))
}

func TestKind_Retryable(t *testing.T) {
	for _, k := range Kinds {
		assert.Equal(t, k == KindProcessFailure, k.Retryable(), k)
	}
}

func TestFailure_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("exit code 1")
	err := fail(KindProcessFailure, inner)
	assert.Equal(t, "ProcessFailure: exit code 1", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "Timeout", (&Failure{Kind: KindTimeout}).Error())
}
