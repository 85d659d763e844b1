// Package navigator moves the viewport onto the selected watershed.
package navigator

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

// DefaultMaxZoom caps fit-to-bounds so tiny watersheds keep surrounding context.
const DefaultMaxZoom = 14.0

// ErrNotFound is returned when the identifier matches no feature. The viewport is left alone.
var ErrNotFound = errors.New("watershed not found")

// Viewport receives fit-to-bounds commands.
type Viewport interface {
	FitBounds(b orb.Bound, maxZoom float64)
}

// Navigator issues at most one viewport move per (identifier, collection) pair.
type Navigator struct {
	vp      Viewport
	maxZoom float64

	lastID   string
	lastColl *watershed.Collection
}

func New(vp Viewport, maxZoom float64) *Navigator {
	if maxZoom <= 0 {
		maxZoom = DefaultMaxZoom
	}
	return &Navigator{vp: vp, maxZoom: maxZoom}
}

// OnIdentifierChange moves the viewport to the feature named by id. It does nothing
// while id is empty or coll is not loaded, and nothing for a pair it already handled.
// It reports whether a viewport command was issued.
func (n *Navigator) OnIdentifierChange(id string, coll *watershed.Collection) (bool, error) {
	if id == "" {
		n.lastID, n.lastColl = "", nil
		return false, nil
	}
	if coll == nil {
		return false, nil
	}
	if id == n.lastID && coll == n.lastColl {
		return false, nil
	}
	n.lastID, n.lastColl = id, coll

	var match *watershed.Feature
	for _, f := range coll.Features() {
		if f.ID == id {
			match = f
			break
		}
	}
	if match == nil {
		metrics.NavigatorMissTotal.Inc()
		logger.L().Debug("navigator_miss", "id", id)
		return false, ErrNotFound
	}
	b := transientBound(match)
	n.vp.FitBounds(b, n.maxZoom)
	metrics.ViewportCommandsTotal.WithLabelValues("fit_bounds").Inc()
	logger.L().Debug("navigator_fit", "id", id, "min", b.Min, "max", b.Max, "max_zoom", n.maxZoom)
	return true, nil
}

// transientBound wraps the feature in a throwaway single-feature collection and
// returns its bounds; nothing of it outlives the call.
func transientBound(f *watershed.Feature) orb.Bound {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(f.Geometry))
	return fc.Features[0].Geometry.Bound()
}

func (n *Navigator) MaxZoom() float64 { return n.maxZoom }
