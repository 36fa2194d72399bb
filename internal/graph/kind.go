package graph

import "strings"

// Kind is the closed set of layer variants the visualizer understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindInput
	KindConv2D
	KindDepthwiseConv2D
	KindBatchNorm
	KindActivation
	KindAdd
	KindPooling2D
	KindFlatten
	KindDense
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindInput:           "input",
	KindConv2D:          "conv2d",
	KindDepthwiseConv2D: "depthwiseConv2d",
	KindBatchNorm:       "batchnorm",
	KindActivation:      "activation",
	KindAdd:             "add",
	KindPooling2D:       "pooling2d",
	KindFlatten:         "flatten",
	KindDense:           "dense",
}

// aliases are keyed by lower-cased name.
var kindAliases = map[string]Kind{
	"input":                  KindInput,
	"inputlayer":             KindInput,
	"conv2d":                 KindConv2D,
	"conv":                   KindConv2D,
	"depthwiseconv2d":        KindDepthwiseConv2D,
	"depthwise_conv2d":       KindDepthwiseConv2D,
	"batchnorm":              KindBatchNorm,
	"batchnormalization":     KindBatchNorm,
	"batch_normalization":    KindBatchNorm,
	"activation":             KindActivation,
	"relu":                   KindActivation,
	"relu6":                  KindActivation,
	"softmax":                KindActivation,
	"add":                    KindAdd,
	"pooling2d":              KindPooling2D,
	"maxpooling2d":           KindPooling2D,
	"averagepooling2d":       KindPooling2D,
	"globalaveragepooling2d": KindPooling2D,
	"globalmaxpooling2d":     KindPooling2D,
	"flatten":                KindFlatten,
	"dense":                  KindDense,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// ParseKind never fails: unrecognized names map to KindUnknown.
func ParseKind(s string) Kind {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}
