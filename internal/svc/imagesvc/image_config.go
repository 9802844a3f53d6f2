package imagesvc

// ImageConfig holds configuration parameters for the image resizer.
type ImageConfig struct {
	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`

	// Quality is the JPEG quality used when a format does not set one.
	Quality int `env:"QUALITY" default:"80"`
}
