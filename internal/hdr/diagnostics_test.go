package hdr

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeBatch_Wait(t *testing.T) {
	batch := newDecomposeBatch("log")
	select {
	case <-batch.Done():
		t.Fatal("batch done before finishing")
	default:
	}

	batch.finish(errors.New("boom"))
	<-batch.Done()
	assert.EqualError(t, batch.Wait(context.Background()), "boom")
}

func TestDiagnostics_Wait(t *testing.T) {
	d := &diagnostics{}
	ok := newDecomposeBatch("read")
	failed := newDecomposeBatch("log")
	d.add(ok)
	d.add(failed)
	ok.finish(nil)
	failed.finish(errors.New("exit status 4"))

	err := d.wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decomposition of log: exit status 4")
	assert.Empty(t, d.take())
	assert.NoError(t, d.wait(context.Background()))
}

func TestDiagnostics_WaitCancelledReportsOnce(t *testing.T) {
	d := &diagnostics{}
	batches := []*DecomposeBatch{newDecomposeBatch("a"), newDecomposeBatch("b"), newDecomposeBatch("c")}
	for _, b := range batches {
		d.add(b)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)

	// Nothing is lost: the unfinished batches are still pending, in order.
	late := newDecomposeBatch("d")
	d.add(late)
	for _, b := range append(batches, late) {
		b.finish(nil)
	}
	pending := d.take()
	assert.Equal(t, append(batches, late), pending)
}
