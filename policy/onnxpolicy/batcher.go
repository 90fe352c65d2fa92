package onnxpolicy

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned for requests made after the batcher stopped.
var ErrClosed = errors.New("onnx batcher closed")

// runFunc scores n encoded observations laid out back to back in input and
// returns n*outputs scores.
type runFunc func(input []float32, n int) ([]float32, error)

type request struct {
	input []float32
	resp  chan response
}

type response struct {
	scores []float32
	err    error
}

// Stats is a snapshot of batcher throughput.
type Stats struct {
	Batches       int64
	Items         int64
	LastBatchSize int64
	AvgBatchSize  float64
}

// batcher collects requests from many goroutines and runs them together,
// either when BatchSize requests are queued or when BatchTimeout passes.
type batcher struct {
	run       runFunc
	inputSize int
	outputs   int
	size      int
	timeout   time.Duration

	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	batches atomic.Int64
	items   atomic.Int64
	last    atomic.Int64
}

func newBatcher(run runFunc, inputSize, outputs, size int, timeout time.Duration) *batcher {
	b := &batcher{
		run:       run,
		inputSize: inputSize,
		outputs:   outputs,
		size:      size,
		timeout:   timeout,
		requests:  make(chan request, size*2),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// Predict blocks until the batch holding input has run.
func (b *batcher) Predict(input []float32) ([]float32, error) {
	resp := make(chan response, 1)
	select {
	case b.requests <- request{input: input, resp: resp}:
	case <-b.done:
		return nil, ErrClosed
	}
	select {
	case r := <-resp:
		return r.scores, r.err
	case <-b.stopped:
		// The loop answers everything it dequeued before stopping.
		select {
		case r := <-resp:
			return r.scores, r.err
		default:
			return nil, ErrClosed
		}
	}
}

func (b *batcher) loop() {
	defer close(b.stopped)

	batchInput := make([]float32, 0, b.size*b.inputSize)
	pending := make([]request, 0, b.size)

	ticker := time.NewTicker(b.timeout)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.runBatch(pending, batchInput)
		pending = pending[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-b.requests:
			pending = append(pending, req)
			batchInput = append(batchInput, req.input...)
			if len(pending) >= b.size {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-b.done:
			// Serve what is already queued, then refuse the rest.
			for {
				select {
				case req := <-b.requests:
					pending = append(pending, req)
					batchInput = append(batchInput, req.input...)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (b *batcher) runBatch(reqs []request, input []float32) {
	n := len(reqs)
	scores, err := b.run(input, n)
	if err == nil && len(scores) < n*b.outputs {
		err = errors.New("onnx output shorter than batch")
	}
	if err != nil {
		for _, r := range reqs {
			r.resp <- response{err: err}
		}
		return
	}

	b.batches.Add(1)
	b.items.Add(int64(n))
	b.last.Store(int64(n))

	for i, r := range reqs {
		out := make([]float32, b.outputs)
		copy(out, scores[i*b.outputs:(i+1)*b.outputs])
		r.resp <- response{scores: out}
	}
}

func (b *batcher) Stats() Stats {
	st := Stats{
		Batches:       b.batches.Load(),
		Items:         b.items.Load(),
		LastBatchSize: b.last.Load(),
	}
	if st.Batches > 0 {
		st.AvgBatchSize = float64(st.Items) / float64(st.Batches)
	}
	return st
}

func (b *batcher) Close() {
	b.stopOnce.Do(func() { close(b.done) })
	<-b.stopped
}
