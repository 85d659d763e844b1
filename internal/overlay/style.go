package overlay

import (
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

var (
	StyleDefault = surface.Style{
		Color:       "#4a83ec",
		Weight:      1,
		FillColor:   "#1c30ed",
		FillOpacity: 0.1,
	}
	StyleSelected = surface.Style{
		Color:       "#ffa500",
		Weight:      3,
		FillColor:   "#ffa500",
		FillOpacity: 0.25,
	}
)

// StyleFor returns the style callback for a selection. outlineOnly drops the fill of
// the selected boundary so sub-layers drawn beneath it stay visible.
func StyleFor(selectedID string, outlineOnly bool) StyleFunc {
	selected := StyleSelected
	if outlineOnly {
		selected.FillOpacity = 0
	}
	return func(f *watershed.Feature) surface.Style {
		if selectedID != "" && f.ID == selectedID {
			return selected
		}
		return StyleDefault
	}
}
