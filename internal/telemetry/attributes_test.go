// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func find(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestAttemptAttributes(t *testing.T) {
	attrs := AttemptAttributes(2, 3)
	v, ok := find(attrs, AttemptKey)
	assert.True(t, ok)
	assert.EqualValues(t, 2, v.AsInt64())
	v, ok = find(attrs, MaxAttemptKey)
	assert.True(t, ok)
	assert.EqualValues(t, 3, v.AsInt64())
}

func TestTranscodeAttributes(t *testing.T) {
	attrs := TranscodeAttributes("ffmpeg", 80<<20)
	v, ok := find(attrs, TranscodeBinKey)
	assert.True(t, ok)
	assert.Equal(t, "ffmpeg", v.AsString())
	v, ok = find(attrs, ArtifactBytesKey)
	assert.True(t, ok)
	assert.EqualValues(t, 80<<20, v.AsInt64())
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("POST", "/api/v1/jobs", 202)
	v, ok := find(attrs, HTTPRouteKey)
	assert.True(t, ok)
	assert.Equal(t, "/api/v1/jobs", v.AsString())
	v, ok = find(attrs, HTTPStatusCodeKey)
	assert.True(t, ok)
	assert.EqualValues(t, 202, v.AsInt64())
}

func TestAttributeKeys_Unique(t *testing.T) {
	keys := []string{
		JobIDKey, JobModeKey, JobSearchKey, JobStateKey,
		AttemptKey, MaxAttemptKey, ExitCodeKey,
		ArtifactBytesKey, TranscodeBinKey, TranscodeOutKey, ErrorKindKey,
		HTTPMethodKey, HTTPRouteKey, HTTPStatusCodeKey,
	}
	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}
