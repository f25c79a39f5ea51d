package tileset

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

var supportedVersions = []string{"0.0", "1.0", "1.1"}

var supportedExtensions = []string{
	"3DTILES_metadata",
	"3DTILES_implicit_tiling",
	"3DTILES_content_gltf",
	"3DTILES_multiple_contents",
	"3DTILES_bounding_volume_S2",
	"3DTILES_batch_table_hierarchy",
	"3DTILES_draco_point_compression",
	"MAXAR_content_geojson",
}

var validate = validator.New()

type Descriptor struct {
	Asset              Asset           `json:"asset"`
	GeometricError     *float64        `json:"geometricError" validate:"required,gte=0"`
	Root               *TileDescriptor `json:"root" validate:"required"`
	ExtensionsUsed     []string        `json:"extensionsUsed"`
	ExtensionsRequired []string        `json:"extensionsRequired"`
}

type Asset struct {
	Version        string `json:"version" validate:"required,oneof=0.0 1.0 1.1"`
	TilesetVersion string `json:"tilesetVersion"`
}

type TileDescriptor struct {
	BoundingVolume      BoundingVolumeDescriptor  `json:"boundingVolume"`
	ViewerRequestVolume *BoundingVolumeDescriptor `json:"viewerRequestVolume"`
	GeometricError      *float64                  `json:"geometricError" validate:"required,gte=0"`
	Refine              string                    `json:"refine" validate:"omitempty,oneof=ADD REPLACE add replace"`
	Transform           []float64                 `json:"transform" validate:"omitempty,len=16"`
	Content             *ContentDescriptor        `json:"content"`
	Contents            []ContentDescriptor       `json:"contents"`
	Children            []*TileDescriptor         `json:"children" validate:"omitempty,dive,required"`
	ImplicitTiling      *ImplicitTilingDescriptor `json:"implicitTiling"`
	Expire              *ExpireDescriptor         `json:"expire"`
	Extensions          TileExtensions            `json:"extensions"`
}

type TileExtensions struct {
	ImplicitTiling *ImplicitTilingDescriptor `json:"3DTILES_implicit_tiling"`
	MultiContent   *struct {
		Contents []ContentDescriptor `json:"contents"`
	} `json:"3DTILES_multiple_contents"`
}

type ContentDescriptor struct {
	URI string `json:"uri"`
	URL string `json:"url"`
}

func (c ContentDescriptor) location() string {
	if c.URI != "" {
		return c.URI
	}
	return c.URL
}

type BoundingVolumeDescriptor struct {
	Box        []float64 `json:"box" validate:"omitempty,len=12"`
	Region     []float64 `json:"region" validate:"omitempty,len=6"`
	Sphere     []float64 `json:"sphere" validate:"omitempty,len=4"`
	Extensions struct {
		S2 *S2Descriptor `json:"3DTILES_bounding_volume_S2"`
	} `json:"extensions"`
}

type S2Descriptor struct {
	Token         string  `json:"token" validate:"required"`
	MinimumHeight float64 `json:"minimumHeight"`
	MaximumHeight float64 `json:"maximumHeight"`
}

type ImplicitTilingDescriptor struct {
	SubdivisionScheme string `json:"subdivisionScheme" validate:"required,oneof=QUADTREE OCTREE"`
	SubtreeLevels     int    `json:"subtreeLevels" validate:"gte=0"`
	AvailableLevels   int    `json:"availableLevels" validate:"gte=0"`
	MaximumLevel      *int   `json:"maximumLevel"`
	Subtrees          struct {
		URI string `json:"uri"`
	} `json:"subtrees"`
}

// levels returns the number of available levels, accepting the older
// maximumLevel form.
func (d *ImplicitTilingDescriptor) levels() int {
	if d.AvailableLevels > 0 {
		return d.AvailableLevels
	}
	if d.MaximumLevel != nil {
		return *d.MaximumLevel + 1
	}
	return 1
}

type ExpireDescriptor struct {
	Duration *float64 `json:"duration"`
	Date     string   `json:"date"`
}

// ParseDescriptor decodes and validates a tileset JSON document.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *Descriptor) Validate() error {
	if d.Asset.Version == "" {
		return fmt.Errorf("%w: asset.version is required", ErrMalformedDescriptor)
	}
	if !slices.Contains(supportedVersions, d.Asset.Version) {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, d.Asset.Version)
	}
	for _, ext := range d.ExtensionsRequired {
		if !slices.Contains(supportedExtensions, ext) {
			return fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
		}
	}
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", ErrMalformedDescriptor, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	var walk func(t *TileDescriptor, path string) error
	walk = func(t *TileDescriptor, path string) error {
		if !t.BoundingVolume.defined() {
			return fmt.Errorf("%w: %s.boundingVolume is required", ErrMalformedDescriptor, path)
		}
		for i, c := range t.Children {
			if err := walk(c, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(d.Root, "root")
}

func (b *BoundingVolumeDescriptor) defined() bool {
	return len(b.Box) == 12 || len(b.Region) == 6 || len(b.Sphere) == 4 || b.Extensions.S2 != nil
}

func (t *TileDescriptor) implicitTiling() *ImplicitTilingDescriptor {
	if t.ImplicitTiling != nil {
		return t.ImplicitTiling
	}
	return t.Extensions.ImplicitTiling
}

func (t *TileDescriptor) contents() []ContentDescriptor {
	var out []ContentDescriptor
	if t.Content != nil && t.Content.location() != "" {
		out = append(out, *t.Content)
	}
	out = append(out, t.Contents...)
	if t.Extensions.MultiContent != nil {
		out = append(out, t.Extensions.MultiContent.Contents...)
	}
	return out
}
