// Package inference defines the contract between the capture pipeline and
// whatever tensor framework actually runs a network.
//
// The pipeline never looks inside a [Tensor]; it asks the [Backend] for a
// handful of preprocessing operations, asks the [Model] for one [Predictor]
// per layer, and disposes every tensor it receives. Implementations must make
// Dispose idempotent and must not share a disposed tensor's memory with a
// live one.
//
// Package cpu provides a reference implementation.
package inference
