package model

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(modelPath string, metadata Metadata, libraryPath string) (*Server, error) {
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Predict runs one forward pass and returns the class probability vector.
// The session's tensors are shared, so concurrent calls are serialised.
func (s *Server) Predict(inputData []float32) ([]float32, error) {
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", ErrShapeMismatch, want, len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	probs := make([]float32, len(outputData))
	copy(probs, outputData)

	if s.Metadata.ApplySoftmax {
		Softmax(probs)
	}
	return probs, nil
}

// Softmax normalises logits in place.
func Softmax(values []float32) {
	if len(values) == 0 {
		return
	}
	maxVal := values[0]
	for _, v := range values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range values {
		e := math.Exp(float64(v - maxVal))
		values[i] = float32(e)
		sum += e
	}
	for i := range values {
		values[i] = float32(float64(values[i]) / sum)
	}
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
