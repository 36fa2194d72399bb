package graph

import "errors"

var (
	// ErrNotFound means no recognized layer list was present in the description.
	ErrNotFound = errors.New("graph: no layer list found in model description")

	// ErrDecode means the description bytes could not be parsed at all.
	ErrDecode = errors.New("graph: cannot decode model description")
)
