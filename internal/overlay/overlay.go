// Package overlay owns the single boundary layer of a mounted map.
//
// The overlay is an explicit resource keyed by collection identity: Render creates a
// layer when the collection pointer changes and destroys the previous one; any other
// Render is a no-op apart from remembering the newest style callback. Create and
// destroy are its only two transitions.
package overlay

import (
	"github.com/google/uuid"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/labels"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

// StyleFunc returns the style of a feature. It must be pure in the feature and
// whatever selection it closes over.
type StyleFunc func(f *watershed.Feature) surface.Style

// BindFunc attaches interaction to a freshly created feature handle.
type BindFunc func(f *watershed.Feature, h *Handle)

// Layer is one live rendering of a collection.
type Layer struct {
	id      string
	coll    *watershed.Collection
	handles []*Handle
	byID    map[string]*Handle
}

func (l *Layer) ID() string                        { return l.id }
func (l *Layer) Collection() *watershed.Collection { return l.coll }

// Handle is the per-feature binding point inside a layer.
type Handle struct {
	layer     *Layer
	surface   surface.Surface
	feature   *watershed.Feature
	onClick   func(id string)
	labelText string
	label     labels.State
}

func (h *Handle) Feature() *watershed.Feature { return h.feature }

// OnClick sets the click handler. A feature has at most one; setting it again replaces it.
func (h *Handle) OnClick(fn func(id string)) { h.onClick = fn }

// MarkLabelCandidate registers text as the feature's tooltip. Visibility is decided
// by the label controller, not here.
func (h *Handle) MarkLabelCandidate(text string) { h.labelText = text }

// LabelState returns the current tooltip state.
func (h *Handle) LabelState() labels.State { return h.label }

// Overlay manages the layer of one map surface.
type Overlay struct {
	surface surface.Surface
	layer   *Layer
	styleOf StyleFunc
	created int
	removed int
}

func New(s surface.Surface) *Overlay {
	return &Overlay{surface: s}
}

// Render shows coll. A different pointer than the current layer's replaces the layer;
// the same pointer keeps layer, styles and bindings untouched. A nil collection
// removes the layer.
func (o *Overlay) Render(coll *watershed.Collection, styleOf StyleFunc, bind BindFunc) *Layer {
	o.styleOf = styleOf
	if o.layer != nil && o.layer.coll == coll {
		return o.layer
	}
	o.detach()
	if coll == nil {
		return nil
	}
	l := &Layer{
		id:      uuid.NewString(),
		coll:    coll,
		handles: make([]*Handle, 0, coll.Len()),
		byID:    make(map[string]*Handle, coll.Len()),
	}
	ids := make([]string, 0, coll.Len())
	for _, f := range coll.Features() {
		h := &Handle{layer: l, surface: o.surface, feature: f}
		if bind != nil {
			bind(f, h)
		}
		l.handles = append(l.handles, h)
		l.byID[f.ID] = h
		ids = append(ids, f.ID)
	}
	o.surface.AddLayer(l.id, ids)
	o.layer = l
	o.created++
	metrics.OverlayLayersCreated.Inc()
	logger.L().Debug("overlay_create", "layer", l.id, "features", len(ids), "skipped", len(coll.Skipped()))
	o.applyStyles()
	return l
}

// Restyle re-evaluates styles on the live layer, e.g. after the selection changed.
func (o *Overlay) Restyle(styleOf StyleFunc) {
	o.styleOf = styleOf
	o.applyStyles()
}

func (o *Overlay) applyStyles() {
	if o.layer == nil || o.styleOf == nil {
		return
	}
	for _, h := range o.layer.handles {
		o.surface.SetStyle(o.layer.id, h.feature.ID, o.styleOf(h.feature))
	}
}

// Click dispatches a click on featureID to its handler. It reports whether a
// handler ran.
func (o *Overlay) Click(featureID string) bool {
	if o.layer == nil {
		return false
	}
	h, ok := o.layer.byID[featureID]
	if !ok || h.onClick == nil {
		return false
	}
	h.onClick(h.feature.ID)
	return true
}

// Layer returns the live layer or nil.
func (o *Overlay) Layer() *Layer { return o.layer }

// Collection returns the collection currently rendered.
func (o *Overlay) Collection() *watershed.Collection {
	if o.layer == nil {
		return nil
	}
	return o.layer.coll
}

// Stats reports how many layers were created and removed over the overlay's life.
func (o *Overlay) Stats() (created, removed int) { return o.created, o.removed }

// Unmount detaches the layer. Calling it again does nothing.
func (o *Overlay) Unmount() {
	o.detach()
	o.styleOf = nil
}

func (o *Overlay) detach() {
	if o.layer == nil {
		return
	}
	o.surface.RemoveLayer(o.layer.id)
	logger.L().Debug("overlay_remove", "layer", o.layer.id)
	o.layer = nil
	o.removed++
	metrics.OverlayLayersRemoved.Inc()
}

// LabelTarget exposes the live layer to the label controller with label access only.
func (o *Overlay) LabelTarget() labels.Target { return labelView{o} }

type labelView struct{ o *Overlay }

func (v labelView) LabelFeatures() []labels.Feature {
	l := v.o.layer
	if l == nil {
		return nil
	}
	out := make([]labels.Feature, len(l.handles))
	for i, h := range l.handles {
		out[i] = labelFeature{h}
	}
	return out
}

type labelFeature struct{ h *Handle }

func (f labelFeature) ID() string          { return f.h.feature.ID }
func (f labelFeature) Text() string        { return f.h.labelText }
func (f labelFeature) State() labels.State { return f.h.label }

func (f labelFeature) Bind(permanent bool) {
	if f.h.labelText == "" {
		return
	}
	f.h.surface.BindTooltip(f.h.layer.id, f.h.feature.ID, f.h.labelText, permanent)
	f.h.label = labels.State{Bound: true, Permanent: permanent}
}

func (f labelFeature) Unbind() {
	if !f.h.label.Bound {
		return
	}
	f.h.surface.UnbindTooltip(f.h.layer.id, f.h.feature.ID)
	f.h.label = labels.State{}
}
