package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erp-sync-service/internal/odoo"
)

var (
	ErrAlreadyRunning    = errors.New("sync is already running")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotLinked         = errors.New("record is not linked to the ERP")
)

// ERP is the part of *odoo.Client the engine drives.
type ERP interface {
	SearchRead(ctx context.Context, model string, domain odoo.Domain, opts odoo.ReadOptions) ([]map[string]any, error)
	SearchCount(ctx context.Context, model string, domain odoo.Domain) (int, error)
	Read(ctx context.Context, model string, ids []int, fields []string) ([]map[string]any, error)
	Create(ctx context.Context, model string, values map[string]any) (int, error)
	Write(ctx context.Context, model string, ids []int, values map[string]any) error
	Execute(ctx context.Context, model, method string, ids []int) (any, error)
}

// Result is the outcome of a single-record operation. A push whose remote
// leg failed is still a Success; SyncError carries the remote failure.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	SyncError string `json:"sync_error,omitempty"`

	err     error
	syncErr error
}

// Err is the local failure, if any.
func (r Result) Err() error { return r.err }

// SyncErr is the remote failure left behind by a local-first push.
func (r Result) SyncErr() error { return r.syncErr }

// failure returns the error that makes this result count as failed in a batch.
func (r Result) failure() error {
	if r.err != nil {
		return r.err
	}
	return r.syncErr
}

func failed(msg string, err error) Result {
	return Result{Message: msg, Error: err.Error(), err: err}
}

func failedf(err error, format string, args ...any) Result {
	return failed(fmt.Sprintf(format, args...), err)
}

type BatchResult struct {
	Attempted  int      `json:"attempted"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
	Total      int      `json:"total"`
	NextOffset int      `json:"next_offset"`
	HasMore    bool     `json:"has_more"`
	// Aborted is set when an authentication failure stopped the batch.
	Aborted bool `json:"aborted,omitempty"`
}

// merge folds a later page into r.
func (r *BatchResult) merge(o *BatchResult, maxErrors int) {
	if o == nil {
		return
	}
	r.Attempted += o.Attempted
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	for _, msg := range o.Errors {
		if maxErrors > 0 && len(r.Errors) >= maxErrors {
			break
		}
		r.Errors = append(r.Errors, msg)
	}
	r.Total = o.Total
	r.NextOffset = o.NextOffset
	r.HasMore = o.HasMore
	r.Aborted = r.Aborted || o.Aborted
}

// PullOptions selects a page of remote pickings. A zero Since pulls all.
type PullOptions struct {
	Since  time.Time
	Offset int
	Limit  int
}

type PageOptions struct {
	Offset int
	Limit  int
}

// ProofOfDelivery is captured by the driver at hand-over.
type ProofOfDelivery struct {
	RecipientName string
	Notes         string
	// Signature is a PNG image; empty skips the attachment upload.
	Signature   []byte
	DeliveredAt time.Time
}
