package models

import "errors"

var (
	// ErrValidation reports malformed or insufficient input, e.g. mismatched X/y lengths.
	ErrValidation = errors.New("invalid input")

	// ErrNotTrained is returned by Predict before Train or Load succeeded.
	ErrNotTrained = errors.New("model not trained")

	// ErrArtifactNotFound is returned by Load when nothing was saved at the path.
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrArtifactCorrupt is returned by Load when the artifact cannot be decoded.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
)
