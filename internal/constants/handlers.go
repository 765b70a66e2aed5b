// Package constants provides shared constants used across the codebase.
package constants

// File upload constants
const (
	// MaxUploadSize is the maximum multipart form size held in memory (32MB).
	// Larger forms spill to temporary files which are removed after the request.
	MaxUploadSize = 32 << 20

	// MatchImageField is the multipart field carrying the probe photo
	MatchImageField = "image"

	// RegisterImagesField is the multipart field carrying registration photos
	RegisterImagesField = "images"

	// RegisterNameField is the multipart field carrying the student name
	RegisterNameField = "name"
)

// Seeding constants
const (
	// SeedImageExtensions are the file extensions picked up by `students seed`
	SeedImageExtensions = ".jpg,.jpeg,.png"
)
