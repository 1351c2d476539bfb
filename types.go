package photobooth

import (
	"github.com/cjeanneret/photobooth/internal/artifact"
	"github.com/cjeanneret/photobooth/internal/config"
	"github.com/cjeanneret/photobooth/internal/export"
	"github.com/cjeanneret/photobooth/internal/hw/camera"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
	"github.com/cjeanneret/photobooth/internal/notify"
)

type (
	Config      = config.Config
	Artifact    = artifact.Artifact
	Filter      = imaging.Kind
	PixelBuffer = imaging.PixelBuffer
	Device      = camera.Device
	Event       = notify.Event
	File        = export.File
)

const (
	FilterNone            = imaging.KindNone
	FilterSepia           = imaging.KindSepia
	FilterGrayscale       = imaging.KindGrayscale
	FilterBlur            = imaging.KindBlur
	FilterBrightness      = imaging.KindBrightness
	FilterContrast        = imaging.KindContrast
	FilterSaturate        = imaging.KindSaturate
	FilterVintage         = imaging.KindVintage
	FilterSoftKorean      = imaging.KindSoftKorean
	FilterSoftKoreanBloom = imaging.KindSoftKoreanBloom
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return config.Default() }

// ApplyFilter runs one filter over buf. See the imaging package for the
// ownership rules of the result.
func ApplyFilter(buf PixelBuffer, f Filter) (PixelBuffer, error) {
	return imaging.Apply(buf, f)
}

// Filters lists every supported filter name.
func Filters() []Filter { return imaging.Kinds() }
