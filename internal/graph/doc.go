// Package graph turns a raw model description into an ordered layer graph.
//
// A description is any decoded JSON or YAML value. [Extract] accepts four
// shapes, tried in order:
//
//   - a bare sequence of layer objects
//   - {"model": {"layers": [...]}}
//   - {"layers": [...]}
//   - {"model": {"model": {"layers": [...]}}}
//
// Anything else yields [ErrNotFound]; choosing a fallback architecture is
// left to the caller (see package architecture).
//
// Residual edges are computed once, when the graph is built, by a
// [ResidualStrategy]. [Lookback] connects every add layer to the layer six
// positions earlier. That span matches MobileNetV2 inverted-residual blocks
// and nothing else, so [Extract] uses [Fallback]: descriptions that name
// their inbound layers get [Explicit] edges, the rest get the lookback.
package graph
