package engine

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

type ortSession struct {
	sess    *ort.DynamicAdvancedSession
	inputs  []IOInfo
	outputs []IOInfo
	backend Backend
	input   *ort.Tensor[float32]
}

func (s *ortSession) Prepare(input Tensor) error {
	if err := input.Validate(); err != nil {
		return err
	}
	if s.input != nil {
		_ = s.input.Destroy()
		s.input = nil
	}
	t, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.input = t
	return nil
}

// Run executes one inference. Outputs are allocated by the runtime and
// released before returning.
func (s *ortSession) Run() error {
	if s.input == nil {
		return fmt.Errorf("input tensor not prepared")
	}
	outputs := make([]ort.Value, len(s.outputs))
	if err := s.sess.Run([]ort.Value{s.input}, outputs); err != nil {
		return fmt.Errorf("%s run failed: %w", s.backend, err)
	}
	for _, o := range outputs {
		if o != nil {
			_ = o.Destroy()
		}
	}
	return nil
}

func (s *ortSession) InputName() string {
	return s.inputs[0].Name
}

func (s *ortSession) Inputs() []IOInfo {
	return s.inputs
}

func (s *ortSession) Outputs() []IOInfo {
	return s.outputs
}

func (s *ortSession) Close() error {
	if s.input != nil {
		_ = s.input.Destroy()
		s.input = nil
	}
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}
