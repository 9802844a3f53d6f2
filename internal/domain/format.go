package domain

// Reserved format names. Neither is prefixed with a context.
const (
	// FormatReference denotes the original, untransformed asset.
	FormatReference = "reference"
	// FormatAdmin is the preview format shared by all contexts.
	FormatAdmin = "admin"
)

// Format describes one derived representation of a media.
type Format struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Quality    int    `yaml:"quality"`
	Format     string `yaml:"format"`
	Constraint bool   `yaml:"constraint"`
}

// Extension returns the file extension the format should be encoded to,
// falling back to the given one when the format does not force an encoding.
func (f Format) Extension(fallback string) string {
	if f.Format != "" {
		return f.Format
	}

	return fallback
}
