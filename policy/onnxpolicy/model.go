package onnxpolicy

import (
	"fmt"
	"sync"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"
)

// model is one ONNX file served by one or more sessions, each behind its own
// batcher. Policies hold references; the sessions are destroyed once the
// family is closed and the last reference is released.
type model struct {
	path     string
	sessions []*ort.DynamicAdvancedSession
	batchers []*batcher
	rr       atomic.Uint64

	mu     sync.Mutex
	refs   int
	closed bool
}

func loadModel(cfg Config, path string, inputSize int) (*model, error) {
	m := &model{path: path}
	for i := 0; i < cfg.Sessions; i++ {
		sess, err := newSession(cfg, path)
		if err != nil {
			m.destroy()
			return nil, fmt.Errorf("create onnx session %d/%d for %s: %w", i+1, cfg.Sessions, path, err)
		}
		m.sessions = append(m.sessions, sess)
		m.batchers = append(m.batchers, newBatcher(sessionRunner(sess, inputSize), inputSize, Outputs, cfg.BatchSize, cfg.BatchTimeout))
	}
	return m, nil
}

func newSession(cfg Config, path string) (*ort.DynamicAdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many policies share few sessions; keep each one single threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.CUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
	}

	return ort.NewDynamicAdvancedSession(path, []string{cfg.InputName}, []string{cfg.OutputName}, options)
}

func sessionRunner(sess *ort.DynamicAdvancedSession, inputSize int) runFunc {
	return func(input []float32, n int) ([]float32, error) {
		inputTensor, err := ort.NewTensor(ort.NewShape(int64(n), int64(inputSize)), input)
		if err != nil {
			return nil, err
		}
		defer inputTensor.Destroy()

		outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(Outputs)))
		if err != nil {
			return nil, err
		}
		defer outputTensor.Destroy()

		if err := sess.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
			return nil, err
		}
		out := make([]float32, n*Outputs)
		copy(out, outputTensor.GetData())
		return out, nil
	}
}

func (m *model) predict(input []float32) ([]float32, error) {
	if len(m.batchers) == 0 {
		return nil, ErrClosed
	}
	idx := int(m.rr.Add(1)-1) % len(m.batchers)
	return m.batchers[idx].Predict(input)
}

func (m *model) retain() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

func (m *model) release() error {
	m.mu.Lock()
	m.refs--
	last := m.refs <= 0 && m.closed
	m.mu.Unlock()
	if last {
		return m.destroy()
	}
	return nil
}

// close marks the model unused by its family. Sessions stay up until every
// policy referencing them is released.
func (m *model) close() error {
	m.mu.Lock()
	m.closed = true
	last := m.refs <= 0
	m.mu.Unlock()
	if last {
		return m.destroy()
	}
	return nil
}

func (m *model) destroy() error {
	for _, b := range m.batchers {
		b.Close()
	}
	var firstErr error
	for _, s := range m.sessions {
		if err := s.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.batchers = nil
	m.sessions = nil
	return firstErr
}

func (m *model) stats() Stats {
	var st Stats
	for _, b := range m.batchers {
		bs := b.Stats()
		st.Batches += bs.Batches
		st.Items += bs.Items
		if bs.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = bs.LastBatchSize
		}
	}
	if st.Batches > 0 {
		st.AvgBatchSize = float64(st.Items) / float64(st.Batches)
	}
	return st
}
