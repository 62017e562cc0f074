package models

// Variant names one derived rendition of an uploaded image.
type Variant string

const (
	VariantThumbnail Variant = "thumbnail"
	VariantMobile    Variant = "mobile"
	VariantWeb       Variant = "web"
)

// AllVariants is the closed set of renditions the processing worker
// produces for every image. Order matters only for display.
var AllVariants = []Variant{VariantThumbnail, VariantMobile, VariantWeb}

// MaxEdge returns the pixel bound of the variant's longest edge.
func (v Variant) MaxEdge() int {
	switch v {
	case VariantThumbnail:
		return 150
	case VariantMobile:
		return 480
	case VariantWeb:
		return 1024
	}
	return 0
}

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantThumbnail, VariantMobile, VariantWeb:
		return true
	}
	return false
}
