// Package surface defines the map rendering surface the core drives, and a headless
// recorder implementation that captures every command for a remote client or a test.
package surface

import (
	"sync"

	"github.com/paulmach/orb"
)

// Style is the visual state of one feature.
type Style struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// Surface is the imperative map the core renders onto.
type Surface interface {
	AddLayer(layerID string, featureIDs []string)
	RemoveLayer(layerID string)
	SetStyle(layerID, featureID string, s Style)
	BindTooltip(layerID, featureID, text string, permanent bool)
	UnbindTooltip(layerID, featureID string)
	FitBounds(b orb.Bound, maxZoom float64)
	SetView(center orb.Point, zoom float64)
}

// Navigator receives outbound navigation requests (route changes).
type Navigator interface {
	Navigate(path string)
}

// Kind names a recorded command.
type Kind string

const (
	KindAddLayer      Kind = "add_layer"
	KindRemoveLayer   Kind = "remove_layer"
	KindSetStyle      Kind = "set_style"
	KindBindTooltip   Kind = "bind_tooltip"
	KindUnbindTooltip Kind = "unbind_tooltip"
	KindFitBounds     Kind = "fit_bounds"
	KindSetView       Kind = "set_view"
	KindNavigate      Kind = "navigate"
)

// Command is one recorded surface call.
type Command struct {
	Kind       Kind        `json:"kind"`
	LayerID    string      `json:"layerId,omitempty"`
	FeatureID  string      `json:"featureId,omitempty"`
	FeatureIDs []string    `json:"featureIds,omitempty"`
	Style      *Style      `json:"style,omitempty"`
	Text       string      `json:"text,omitempty"`
	Permanent  bool        `json:"permanent,omitempty"`
	Bounds     *[4]float64 `json:"bounds,omitempty"` // minLon, minLat, maxLon, maxLat
	MaxZoom    float64     `json:"maxZoom,omitempty"`
	Center     *[2]float64 `json:"center,omitempty"` // lon, lat
	Zoom       float64     `json:"zoom,omitempty"`
	Path       string      `json:"path,omitempty"`
}

// Tooltip is the live tooltip of one feature.
type Tooltip struct {
	Text      string
	Permanent bool
}

// Recorder is a Surface and Navigator that keeps an ordered command log plus
// the live state those commands produce. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	cmds     []Command
	layers   map[string][]string
	styles   map[string]Style
	tooltips map[string]Tooltip
}

func NewRecorder() *Recorder {
	return &Recorder{
		layers:   make(map[string][]string),
		styles:   make(map[string]Style),
		tooltips: make(map[string]Tooltip),
	}
}

func key(layerID, featureID string) string { return layerID + "/" + featureID }

func (r *Recorder) AddLayer(layerID string, featureIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := append([]string(nil), featureIDs...)
	r.layers[layerID] = ids
	r.cmds = append(r.cmds, Command{Kind: KindAddLayer, LayerID: layerID, FeatureIDs: ids})
}

func (r *Recorder) RemoveLayer(layerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fid := range r.layers[layerID] {
		delete(r.styles, key(layerID, fid))
		delete(r.tooltips, key(layerID, fid))
	}
	delete(r.layers, layerID)
	r.cmds = append(r.cmds, Command{Kind: KindRemoveLayer, LayerID: layerID})
}

func (r *Recorder) SetStyle(layerID, featureID string, s Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles[key(layerID, featureID)] = s
	st := s
	r.cmds = append(r.cmds, Command{Kind: KindSetStyle, LayerID: layerID, FeatureID: featureID, Style: &st})
}

func (r *Recorder) BindTooltip(layerID, featureID, text string, permanent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tooltips[key(layerID, featureID)] = Tooltip{Text: text, Permanent: permanent}
	r.cmds = append(r.cmds, Command{Kind: KindBindTooltip, LayerID: layerID, FeatureID: featureID, Text: text, Permanent: permanent})
}

func (r *Recorder) UnbindTooltip(layerID, featureID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tooltips, key(layerID, featureID))
	r.cmds = append(r.cmds, Command{Kind: KindUnbindTooltip, LayerID: layerID, FeatureID: featureID})
}

func (r *Recorder) FitBounds(b orb.Bound, maxZoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bb := [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	r.cmds = append(r.cmds, Command{Kind: KindFitBounds, Bounds: &bb, MaxZoom: maxZoom})
}

func (r *Recorder) SetView(center orb.Point, zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := [2]float64{center.Lon(), center.Lat()}
	r.cmds = append(r.cmds, Command{Kind: KindSetView, Center: &c, Zoom: zoom})
}

func (r *Recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, Command{Kind: KindNavigate, Path: path})
}

// Commands returns a copy of the log without clearing it.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

// Drain returns the log and clears it; live state is kept.
func (r *Recorder) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.cmds
	r.cmds = nil
	return out
}

// Count returns how many logged commands have the given kind.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cmds {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Layers returns the ids of the layers currently attached.
func (r *Recorder) Layers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.layers))
	for id := range r.layers {
		out = append(out, id)
	}
	return out
}

// StyleOf returns the live style of a feature.
func (r *Recorder) StyleOf(layerID, featureID string) (Style, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.styles[key(layerID, featureID)]
	return s, ok
}

// TooltipOf returns the live tooltip of a feature.
func (r *Recorder) TooltipOf(layerID, featureID string) (Tooltip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tooltips[key(layerID, featureID)]
	return t, ok
}
