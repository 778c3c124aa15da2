package data

import "errors"

var (
	ErrNoExtractorFound = errors.New("no extractor matches the page")
	ErrMetadataNotFound = errors.New("page metadata not found")
	ErrListingAPI       = errors.New("listing api failed")
	ErrResolution       = errors.New("stream resolution failed")
	ErrInvalidSelection = errors.New("invalid item selection")
	ErrInvalidURL       = errors.New("invalid page url")
)
