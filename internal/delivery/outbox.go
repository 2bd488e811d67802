// SPDX-License-Identifier: MIT

// Package delivery hands finished artifacts and status updates to the outside
// world: an outbox directory, webhooks and plain writers.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/pipeline"
)

// Outbox copies delivered artifacts into a directory. Files appear there
// atomically and durably: readers never observe a partial copy.
type Outbox struct {
	dir string
}

var _ pipeline.Deliverer = (*Outbox)(nil)

// NewOutbox creates dir if needed.
func NewOutbox(dir string) (*Outbox, error) {
	if dir == "" {
		return nil, errors.New("delivery: empty outbox directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("delivery: create outbox: %w", err)
	}
	return &Outbox{dir: dir}, nil
}

// Dir returns the outbox directory.
func (o *Outbox) Dir() string { return o.dir }

// Destination returns where the artifact of d lands: "<dir>/<jobID><ext>".
func (o *Outbox) Destination(d pipeline.Delivery) string {
	ext := filepath.Ext(d.Path)
	if ext == "" {
		ext = "." + d.Mode.Ext()
	}
	return filepath.Join(o.dir, d.JobID+strings.ToLower(ext))
}

// Deliver implements pipeline.Deliverer.
func (o *Outbox) Deliver(ctx context.Context, d pipeline.Delivery) error {
	logger := log.WithContext(ctx, log.WithComponent("delivery"))
	dest := o.Destination(d)

	src, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	pendingFile, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending outbox file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending outbox file")
		}
	}()

	n, err := io.Copy(pendingFile, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace outbox file: %w", err)
	}

	logger.Info().
		Str(log.FieldEvent, "delivery.outbox").
		Str(log.FieldPath, dest).
		Int64(log.FieldBytes, n).
		Str("title", d.Meta.Title).
		Str("performer", d.Meta.Performer).
		Msg("artifact delivered")
	return nil
}

// ctxReader aborts a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
