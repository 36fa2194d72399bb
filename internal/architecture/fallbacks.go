package architecture

import (
	"strconv"

	"github.com/san-kum/layerscope/internal/graph"
)

func input() graph.Layer {
	return graph.Layer{Kind: graph.KindInput, Name: "input", Shape: []int{224, 224, 3}}
}

func conv(name string, filters, k, s int, act string) graph.Layer {
	return graph.Layer{
		Kind: graph.KindConv2D, Name: name, Filters: filters,
		KernelSize: [2]int{k, k}, Strides: [2]int{s, s}, Activation: act,
	}
}

func depthwise(name string, k, s int) graph.Layer {
	return graph.Layer{Kind: graph.KindDepthwiseConv2D, Name: name, KernelSize: [2]int{k, k}, Strides: [2]int{s, s}}
}

func bn(name string) graph.Layer { return graph.Layer{Kind: graph.KindBatchNorm, Name: name} }

func add(name string) graph.Layer { return graph.Layer{Kind: graph.KindAdd, Name: name} }

func pool(name string, size int, typ string) graph.Layer {
	return graph.Layer{Kind: graph.KindPooling2D, Name: name, PoolSize: [2]int{size, size}, PoolType: typ}
}

func dense(name string, units int, act string) graph.Layer {
	return graph.Layer{Kind: graph.KindDense, Name: name, Units: units, Activation: act}
}

// MobileNetV2Detailed is the first five inverted-residual blocks of
// MobileNetV2 plus its head. Each add sits six layers after its block input.
func MobileNetV2Detailed() []graph.Layer {
	return []graph.Layer{
		input(),
		conv("Conv1", 32, 3, 2, "relu6"),
		bn("bn_Conv1"),
		depthwise("expanded_conv_depthwise", 3, 1),
		bn("expanded_conv_depthwise_BN"),
		{Kind: graph.KindActivation, Name: "expanded_conv_depthwise_relu", Activation: "relu6"},
		conv("expanded_conv_project", 16, 1, 1, ""),
		bn("expanded_conv_project_BN"),

		conv("block_1_expand", 96, 1, 1, "relu6"),
		bn("block_1_expand_BN"),
		depthwise("block_1_depthwise", 3, 2),
		bn("block_1_depthwise_BN"),
		conv("block_1_project", 24, 1, 1, ""),
		bn("block_1_project_BN"),

		conv("block_2_expand", 144, 1, 1, "relu6"),
		bn("block_2_expand_BN"),
		depthwise("block_2_depthwise", 3, 1),
		bn("block_2_depthwise_BN"),
		conv("block_2_project", 24, 1, 1, ""),
		bn("block_2_project_BN"),
		add("block_2_add"),

		conv("block_3_expand", 144, 1, 1, "relu6"),
		bn("block_3_expand_BN"),
		depthwise("block_3_depthwise", 3, 2),
		bn("block_3_depthwise_BN"),
		conv("block_3_project", 32, 1, 1, ""),
		bn("block_3_project_BN"),

		conv("block_4_expand", 192, 1, 1, "relu6"),
		bn("block_4_expand_BN"),
		depthwise("block_4_depthwise", 3, 1),
		bn("block_4_depthwise_BN"),
		conv("block_4_project", 32, 1, 1, ""),
		bn("block_4_project_BN"),
		add("block_4_add"),

		conv("Conv_1", 1280, 1, 1, "relu6"),
		pool("global_pool", 7, "avg"),
		conv("Conv_2", 1000, 1, 1, ""),
		{Kind: graph.KindFlatten, Name: "flatten"},
		dense("Logits", 1000, "softmax"),
	}
}

func MobileNetV2Summary() []graph.Layer {
	layers := []graph.Layer{input(), conv("conv1", 32, 3, 1, "relu")}
	for i, f := range []int{16, 24, 32, 64, 96, 160, 320} {
		layers = append(layers, conv("inverted_res"+strconv.Itoa(i+1), f, 3, 1, "relu"))
	}
	return append(layers,
		conv("conv_last", 1280, 1, 1, "relu"),
		pool("global_pool", 7, ""),
		dense("output", 1000, "softmax"),
	)
}

func MobileNetV1Summary() []graph.Layer {
	layers := []graph.Layer{input(), conv("conv1", 32, 3, 1, "relu")}
	widths := []int{32, 64, 64, 128, 128, 128, 128, 256}
	for i := 0; i < len(widths); i += 2 {
		n := strconv.Itoa(i/2 + 1)
		layers = append(layers,
			conv("conv_dw_"+n, widths[i], 3, 1, "relu"),
			conv("conv_pw_"+n, widths[i+1], 1, 1, "relu"),
		)
	}
	return append(layers,
		pool("global_pool", 7, ""),
		dense("output", 1000, "softmax"),
	)
}

func SimpleCNN() []graph.Layer {
	return []graph.Layer{
		input(),
		conv("conv1", 32, 3, 1, "relu"),
		pool("pool1", 2, ""),
		conv("conv2", 64, 3, 1, "relu"),
		pool("pool2", 2, ""),
		conv("conv3", 128, 3, 1, "relu"),
		pool("pool3", 2, ""),
		{Kind: graph.KindFlatten, Name: "flatten"},
		dense("dense1", 128, "relu"),
		dense("output", 10, "softmax"),
	}
}
