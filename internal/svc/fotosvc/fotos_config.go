package fotosvc

// FotosConfig holds configuration parameters for the fotos service.
type FotosConfig struct {
	// MaxSize is the maximum decoded size of a single PNG in bytes.
	// Default is 10MB.
	MaxSize int64 `env:"MAX_SIZE" default:"10485760"`

	// MaxBodySize bounds the JSON upload body, which carries up to two base64 images.
	// Default is 32MB.
	MaxBodySize int64 `env:"MAX_BODY_SIZE" default:"33554432"`

	// MaxWidth is the largest thumbnail width a client may request.
	MaxWidth int `env:"MAX_WIDTH" default:"2048"`

	// Interpolator specifies the image scaling algorithm to use.
	// Valid values are: "nearestneighbor", "catmullrom", "bilinear", "approxbilinear"
	Interpolator string `env:"INTERPOLATOR" default:"catmullrom"`
}
