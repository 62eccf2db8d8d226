package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidSceneID        = errors.New("invalid scene ID")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrEmptyHeading          = errors.New("scene heading cannot be empty")
	ErrInvalidMatchType      = errors.New("match type must be lexical or semantic")
)
