// Package trainer defines the training step abstraction the worker drives:
// a callable with contract (state) → (state', observation) plus
// serialize/deserialize. FakeModel is a toy two-layer perceptron
// simulation, giving the worker a real runnable default.
package trainer

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Step is the contract the worker drives once per sample line.
type Step interface {
	// Train executes one training step and returns the loss observation.
	Train(sample string) (loss float64, err error)
	// StateDict serializes the model's opaque state for checkpointing.
	StateDict() ([]byte, error)
	// LoadStateDict restores state previously returned by StateDict.
	LoadStateDict([]byte) error
}

// FakeModel simulates a 2-layer perceptron: forward pass, fake MSE loss,
// and a gradient-descent-flavored perturbation instead of real backprop —
// exactly the approximation in training.py, so loss curves and checkpoint
// shapes match a real model's without any heavyweight math dependency.
type FakeModel struct {
	InputSize  int
	HiddenSize int
	OutputSize int

	weights1 [][]float64
	bias1    []float64
	weights2 [][]float64
	bias2    []float64

	lossHistory []float64
	stepCount   int
	learnRate   float64

	rng *rand.Rand
}

// NewFakeModel builds a model with the given architecture and a fixed seed
// so runs are reproducible across resumes in tests.
func NewFakeModel(inputSize, hiddenSize, outputSize int, seed int64) *FakeModel {
	m := &FakeModel{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		OutputSize: outputSize,
		learnRate:  0.001,
		rng:        rand.New(rand.NewSource(seed)),
	}
	m.weights1 = randMatrix(m.rng, inputSize, hiddenSize)
	m.bias1 = randVector(m.rng, hiddenSize)
	m.weights2 = randMatrix(m.rng, hiddenSize, outputSize)
	m.bias2 = randVector(m.rng, outputSize)
	return m
}

const batchSize = 32

// Train implements Step: one forward pass over a synthetic batch, a fake
// MSE loss against a fixed target, and a perturbation-based "backward" pass.
func (m *FakeModel) Train(sample string) (float64, error) {
	batch := m.syntheticBatch(batchSize)
	output := m.forward(batch)
	loss := fakeLoss(output, 0.5)
	m.backward(loss)
	m.lossHistory = append(m.lossHistory, loss)
	return loss, nil
}

func (m *FakeModel) forward(batch [][]float64) float64 {
	var sum float64
	for _, x := range batch {
		hidden := make([]float64, m.HiddenSize)
		for j := 0; j < m.HiddenSize; j++ {
			var h float64
			for i := 0; i < m.InputSize; i++ {
				h += m.weights1[i][j] * x[i]
			}
			h += m.bias1[j]
			if h < 0 {
				h = 0 // ReLU
			}
			hidden[j] = h
		}
		var out float64
		for j := 0; j < m.HiddenSize; j++ {
			out += m.weights2[j][0] * hidden[j]
		}
		out += m.bias2[0]
		sum += out
	}
	return sum / float64(len(batch))
}

func (m *FakeModel) backward(loss float64) {
	m.stepCount++
	lr := m.learnRate / (1 + 0.0001*float64(m.stepCount))
	perturbation := lr * (m.rng.Float64()*0.02 - 0.01)

	for i := range m.weights1 {
		for j := range m.weights1[i] {
			m.weights1[i][j] += perturbation
		}
	}
	for j := range m.bias1 {
		m.bias1[j] += perturbation * 0.1
	}
	for i := range m.weights2 {
		for j := range m.weights2[i] {
			m.weights2[i][j] += perturbation
		}
	}
	for j := range m.bias2 {
		m.bias2[j] += perturbation * 0.1
	}
}

func (m *FakeModel) syntheticBatch(n int) [][]float64 {
	batch := make([][]float64, n)
	for i := range batch {
		row := make([]float64, m.InputSize)
		for j := range row {
			row[j] = m.rng.Float64()*2 - 1
		}
		batch[i] = row
	}
	return batch
}

func fakeLoss(output, target float64) float64 {
	err := output - target
	return err * err
}

// modelState is the JSON-serializable view of FakeModel's weights.
type modelState struct {
	Weights1    [][]float64 `json:"weights_1"`
	Bias1       []float64   `json:"bias_1"`
	Weights2    [][]float64 `json:"weights_2"`
	Bias2       []float64   `json:"bias_2"`
	LossHistory []float64   `json:"loss_history"`
	InputSize   int         `json:"input_size"`
	HiddenSize  int         `json:"hidden_size"`
	OutputSize  int         `json:"output_size"`
}

// StateDict implements Step.
func (m *FakeModel) StateDict() ([]byte, error) {
	return json.Marshal(modelState{
		Weights1:    m.weights1,
		Bias1:       m.bias1,
		Weights2:    m.weights2,
		Bias2:       m.bias2,
		LossHistory: m.lossHistory,
		InputSize:   m.InputSize,
		HiddenSize:  m.HiddenSize,
		OutputSize:  m.OutputSize,
	})
}

// LoadStateDict implements Step.
func (m *FakeModel) LoadStateDict(data []byte) error {
	var s modelState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode model state: %w", err)
	}
	m.weights1 = s.Weights1
	m.bias1 = s.Bias1
	m.weights2 = s.Weights2
	m.bias2 = s.Bias2
	m.lossHistory = s.LossHistory
	if s.InputSize > 0 {
		m.InputSize = s.InputSize
	}
	if s.HiddenSize > 0 {
		m.HiddenSize = s.HiddenSize
	}
	if s.OutputSize > 0 {
		m.OutputSize = s.OutputSize
	}
	return nil
}

func randMatrix(r *rand.Rand, rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = r.Float64()*0.2 - 0.1
		}
		m[i] = row
	}
	return m
}

func randVector(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = r.Float64()*0.2 - 0.1
	}
	return v
}
