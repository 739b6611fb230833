package hdr

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DecomposeBatch tracks the decomposition started for one metric.
type DecomposeBatch struct {
	Metric MetricName
	done   chan struct{}
	err    error
}

func newDecomposeBatch(metric MetricName) *DecomposeBatch {
	return &DecomposeBatch{Metric: metric, done: make(chan struct{})}
}

// Done is closed once every decomposition of the batch has finished.
func (b *DecomposeBatch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch has finished or ctx is done, returning the combined failures of the batch.
func (b *DecomposeBatch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (b *DecomposeBatch) finish(err error) {
	b.err = err
	close(b.done)
}

// diagnostics holds the decompose batches nobody has waited for yet.
type diagnostics struct {
	mu      sync.Mutex
	pending []*DecomposeBatch
}

func (d *diagnostics) add(b *DecomposeBatch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, b)
}

func (d *diagnostics) take() []*DecomposeBatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	rv := d.pending
	d.pending = nil
	return rv
}

// putBack returns batches to the front of the pending list, ahead of any added since take.
func (d *diagnostics) putBack(batches []*DecomposeBatch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(append([]*DecomposeBatch{}, batches...), d.pending...)
}

// wait drains every pending batch. Once ctx is done, the batches not yet drained are put back
// and the cancellation is reported once.
func (d *diagnostics) wait(ctx context.Context) error {
	var result *multierror.Error
	pending := d.take()
	for i, b := range pending {
		select {
		case <-b.Done():
			if b.err != nil {
				result = multierror.Append(result, errors.WithMessagef(b.err, "decomposition of %s", b.Metric))
			}
		case <-ctx.Done():
			d.putBack(pending[i:])
			return multierror.Append(result, errors.WithStack(ctx.Err())).ErrorOrNil()
		}
	}
	return result.ErrorOrNil()
}
