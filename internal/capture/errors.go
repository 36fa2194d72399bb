package capture

import (
	"errors"
	"fmt"
)

var (
	ErrNoModel = errors.New("capture: no model loaded")
	ErrNoImage = errors.New("capture: no image")
)

type Stage string

const (
	StageBuild   Stage = "build"
	StagePredict Stage = "predict"
	StageRead    Stage = "read"
)

// LayerError is the cause carried by a Failure record.
type LayerError struct {
	Index int
	Name  string
	Stage Stage
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("capture: layer %d (%s) %s: %v", e.Index, e.Name, e.Stage, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// PreprocessError means the input image could not be turned into a model
// input, so no layer was run.
type PreprocessError struct {
	Op  string
	Err error
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("capture: preprocess %s: %v", e.Op, e.Err)
}

func (e *PreprocessError) Unwrap() error { return e.Err }
