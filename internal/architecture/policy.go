package architecture

// Layer spacing along the principal axis. Deep architectures get a tighter
// spacing so the whole network stays in frame.
const (
	DefaultSpacing = 10.0
	CompactSpacing = 6.0
)

func SpacingFor(modelType string) float64 {
	if modelType == MobileNetV2Vis {
		return CompactSpacing
	}
	return DefaultSpacing
}

// SymmetricInput reports whether the model type expects inputs in [-1, 1].
func SymmetricInput(modelType string) bool {
	return modelType == MobileNetV2Vis || modelType == MobileNetV2
}
