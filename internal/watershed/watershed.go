// Package watershed holds the read-only boundary dataset shared by every map component.
//
// A Collection is decoded once per dataset key and then shared by pointer; no component
// mutates it. Features whose geometry or identifier is unusable are dropped during decode
// so a single defect never prevents sibling features from rendering.
package watershed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// DefaultNameProperty is the properties key holding a watershed's display name.
const DefaultNameProperty = "name"

var (
	ErrInvalidCollection = errors.New("invalid feature collection")
	ErrMalformedFeature  = errors.New("malformed feature")
)

// Feature is one watershed boundary.
type Feature struct {
	ID         string
	Name       string // empty when the feature has no label
	Geometry   orb.Geometry
	Properties geojson.Properties
	Bound      orb.Bound
}

// HasLabel reports whether the feature carries a display name.
func (f *Feature) HasLabel() bool { return f.Name != "" }

// Contains reports whether pt lies inside the feature, holes excluded.
func (f *Feature) Contains(pt orb.Point) bool {
	if !f.Bound.Contains(pt) {
		return false
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	}
	return false
}

// Skipped describes a feature dropped during decode.
type Skipped struct {
	Index int
	Err   error
}

// Collection is the ordered, immutable set of features of one dataset.
type Collection struct {
	features []*Feature
	skipped  []Skipped
	raw      []byte
}

// Features returns the features in dataset order. Callers must not modify the slice.
func (c *Collection) Features() []*Feature {
	if c == nil {
		return nil
	}
	return c.features
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.features)
}

// Skipped lists the features dropped during decode.
func (c *Collection) Skipped() []Skipped {
	if c == nil {
		return nil
	}
	return c.skipped
}

// Raw returns the bytes the collection was decoded from.
func (c *Collection) Raw() []byte {
	if c == nil {
		return nil
	}
	return c.raw
}

// FeatureAt returns the first feature containing pt, in dataset order.
func (c *Collection) FeatureAt(pt orb.Point) (*Feature, bool) {
	for _, f := range c.Features() {
		if f.Contains(pt) {
			return f, true
		}
	}
	return nil, false
}

type decodeOptions struct {
	nameProperty string
}

// Option tunes Decode.
type Option func(*decodeOptions)

// WithNameProperty changes the properties key read as display name.
func WithNameProperty(key string) Option {
	return func(o *decodeOptions) {
		if key != "" {
			o.nameProperty = key
		}
	}
}

// Decode parses a GeoJSON FeatureCollection. Only an unreadable envelope is an error;
// individual malformed features are recorded in Skipped and left out.
func Decode(data []byte, opts ...Option) (*Collection, error) {
	o := decodeOptions{nameProperty: DefaultNameProperty}
	for _, fn := range opts {
		fn(&o)
	}
	var env struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if !strings.EqualFold(env.Type, "FeatureCollection") {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidCollection, env.Type)
	}
	c := &Collection{features: make([]*Feature, 0, len(env.Features)), raw: data}
	for i, raw := range env.Features {
		f, err := decodeFeature(raw, o)
		if err != nil {
			c.skipped = append(c.skipped, Skipped{Index: i, Err: err})
			continue
		}
		c.features = append(c.features, f)
	}
	return c, nil
}

func decodeFeature(raw json.RawMessage, o decodeOptions) (*Feature, error) {
	gf, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeature, err)
	}
	var geom orb.Geometry
	switch g := gf.Geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 4 {
			return nil, fmt.Errorf("%w: empty polygon", ErrMalformedFeature)
		}
		geom = g
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, fmt.Errorf("%w: empty multipolygon", ErrMalformedFeature)
		}
		for _, p := range g {
			if len(p) == 0 || len(p[0]) < 4 {
				return nil, fmt.Errorf("%w: empty polygon in multipolygon", ErrMalformedFeature)
			}
		}
		geom = g
	case nil:
		return nil, fmt.Errorf("%w: missing geometry", ErrMalformedFeature)
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %s", ErrMalformedFeature, gf.Geometry.GeoJSONType())
	}
	id := stringifyID(gf.ID)
	if id == "" {
		id = stringifyID(gf.Properties["id"])
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedFeature)
	}
	return &Feature{
		ID:         id,
		Name:       strings.TrimSpace(gf.Properties.MustString(o.nameProperty, "")),
		Geometry:   geom,
		Properties: gf.Properties,
		Bound:      geom.Bound(),
	}, nil
}

// stringifyID renders a GeoJSON id (string or number) the way it appears in a URL.
func stringifyID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
