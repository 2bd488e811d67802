// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticLog(t *testing.T) {
	d := NewDiagnosticLog(3)
	assert.Empty(t, d.Lines())

	d.Add("line1")
	d.Add("line2")
	assert.Equal(t, []string{"line1", "line2"}, d.Lines())

	d.Add("line3")
	assert.Equal(t, []string{"line1", "line2", "line3"}, d.Lines())

	// wrap
	d.Add("line4")
	assert.Equal(t, []string{"line2", "line3", "line4"}, d.Lines())
	assert.Equal(t, []string{"line3", "line4"}, d.Tail(2))
	assert.Equal(t, []string{"line2", "line3", "line4"}, d.Tail(10))
	assert.Equal(t, "line2\nline3\nline4", d.Text())
	assert.Equal(t, 3, d.Len())
}

func TestDiagnosticLog_DefaultCapacity(t *testing.T) {
	d := NewDiagnosticLog(0)
	for i := 0; i < defaultDiagnosticLines+10; i++ {
		d.Add("x")
	}
	assert.Equal(t, defaultDiagnosticLines, d.Len())
	assert.Nil(t, d.Tail(0))
}

func TestScanLinesCR(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		atEOF   bool
		advance int
		token   string
	}{
		{name: "newline", data: "abc\ndef", advance: 4, token: "abc"},
		{name: "carriage return", data: "frame=1\rframe=2", advance: 8, token: "frame=1"},
		{name: "incomplete", data: "abc", advance: 0, token: ""},
		{name: "eof flush", data: "abc", atEOF: true, advance: 3, token: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, tok, err := scanLinesCR([]byte(tt.data), tt.atEOF)
			assert.NoError(t, err)
			assert.Equal(t, tt.advance, adv)
			assert.Equal(t, tt.token, string(tok))
		})
	}
}
