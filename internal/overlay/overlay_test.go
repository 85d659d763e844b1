package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/surface"
	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/watershed"
)

const boundaries = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"1","properties":{"name":"Alpha"},
   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
  {"type":"Feature","id":"2","properties":{},
   "geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,3],[2,2]]]}},
  {"type":"Feature","id":"broken","properties":{"name":"Broken"},"geometry":null}
]}`

func decode(t *testing.T) *watershed.Collection {
	t.Helper()
	c, err := watershed.Decode([]byte(boundaries))
	require.NoError(t, err)
	return c
}

type counter struct {
	style, bind int
}

func (c *counter) styleOf(selected string) StyleFunc {
	base := StyleFor(selected, false)
	return func(f *watershed.Feature) surface.Style {
		c.style++
		return base(f)
	}
}

func (c *counter) binder(f *watershed.Feature, h *Handle) {
	c.bind++
	h.MarkLabelCandidate(f.Name)
}

func TestRenderSameCollectionIsNoop(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	coll := decode(t)
	cnt := &counter{}

	l1 := o.Render(coll, cnt.styleOf(""), cnt.binder)
	require.NotNil(t, l1)
	assert.Equal(t, 2, cnt.bind)
	assert.Equal(t, 2, cnt.style)
	assert.Equal(t, 1, rec.Count(surface.KindAddLayer))

	for i := 0; i < 5; i++ {
		l := o.Render(coll, cnt.styleOf("1"), cnt.binder)
		assert.Same(t, l1, l)
	}
	assert.Equal(t, 2, cnt.bind)
	assert.Equal(t, 2, cnt.style)
	assert.Equal(t, 1, rec.Count(surface.KindAddLayer))
	assert.Equal(t, 0, rec.Count(surface.KindRemoveLayer))
	created, removed := o.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, removed)
}

func TestRenderNewCollectionReplacesLayer(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	cnt := &counter{}

	l1 := o.Render(decode(t), cnt.styleOf(""), cnt.binder)
	l2 := o.Render(decode(t), cnt.styleOf(""), cnt.binder)

	assert.NotEqual(t, l1.ID(), l2.ID())
	assert.Equal(t, 4, cnt.bind)
	assert.Equal(t, 2, rec.Count(surface.KindAddLayer))
	assert.Equal(t, 1, rec.Count(surface.KindRemoveLayer))
	assert.Equal(t, []string{l2.ID()}, rec.Layers())
	assert.Same(t, l2, o.Layer())
}

func TestMalformedFeatureIsSkipped(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	l := o.Render(decode(t), StyleFor("", false), nil)

	cmds := rec.Commands()
	require.Equal(t, surface.KindAddLayer, cmds[0].Kind)
	assert.Equal(t, []string{"1", "2"}, cmds[0].FeatureIDs)
	assert.Len(t, l.Collection().Skipped(), 1)
}

func TestStyleReflectsSelection(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	l := o.Render(decode(t), StyleFor("2", false), nil)

	s, ok := rec.StyleOf(l.ID(), "2")
	require.True(t, ok)
	assert.Equal(t, StyleSelected, s)
	s, _ = rec.StyleOf(l.ID(), "1")
	assert.Equal(t, StyleDefault, s)

	o.Restyle(StyleFor("1", false))
	s, _ = rec.StyleOf(l.ID(), "1")
	assert.Equal(t, StyleSelected, s)
	s, _ = rec.StyleOf(l.ID(), "2")
	assert.Equal(t, StyleDefault, s)
	assert.Equal(t, 1, rec.Count(surface.KindAddLayer))
}

func TestStyleForIsPure(t *testing.T) {
	coll := decode(t)
	fn := StyleFor("1", true)
	for i := 0; i < 3; i++ {
		for _, f := range coll.Features() {
			want := StyleDefault
			if f.ID == "1" {
				want = StyleSelected
				want.FillOpacity = 0
			}
			assert.Equal(t, want, fn(f))
		}
	}
	for _, f := range coll.Features() {
		assert.Equal(t, StyleDefault, StyleFor("", false)(f))
	}
}

func TestClickHandlerReplacedNotDuplicated(t *testing.T) {
	o := New(surface.NewRecorder())
	var a, b int
	o.Render(decode(t), StyleFor("", false), func(f *watershed.Feature, h *Handle) {
		h.OnClick(func(string) { a++ })
		h.OnClick(func(id string) {
			if id == f.ID {
				b++
			}
		})
	})

	assert.True(t, o.Click("1"))
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.False(t, o.Click("broken"))
	assert.False(t, o.Click("nope"))
}

func TestUnmountDetachesOnce(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	o.Render(decode(t), StyleFor("", false), nil)

	o.Unmount()
	o.Unmount()
	assert.Equal(t, 1, rec.Count(surface.KindRemoveLayer))
	assert.Empty(t, rec.Layers())
	assert.Nil(t, o.Collection())
	assert.False(t, o.Click("1"))
	o.Restyle(StyleFor("1", false))
	assert.Equal(t, 2, rec.Count(surface.KindSetStyle))
}

func TestRenderNilRemovesLayer(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	o.Render(decode(t), StyleFor("", false), nil)
	assert.Nil(t, o.Render(nil, StyleFor("", false), nil))
	assert.Equal(t, 1, rec.Count(surface.KindRemoveLayer))
}

func TestLabelTargetExposesOnlyLabelOperations(t *testing.T) {
	rec := surface.NewRecorder()
	o := New(rec)
	assert.Empty(t, o.LabelTarget().LabelFeatures())

	cnt := &counter{}
	l := o.Render(decode(t), cnt.styleOf(""), cnt.binder)
	fs := o.LabelTarget().LabelFeatures()
	require.Len(t, fs, 2)
	assert.Equal(t, "Alpha", fs[0].Text())
	assert.Equal(t, "", fs[1].Text())

	fs[0].Bind(true)
	fs[1].Bind(true)
	tip, ok := rec.TooltipOf(l.ID(), "1")
	require.True(t, ok)
	assert.True(t, tip.Permanent)
	_, ok = rec.TooltipOf(l.ID(), "2")
	assert.False(t, ok)
	assert.True(t, fs[1].State().Hidden())

	fs[0].Unbind()
	fs[0].Unbind()
	assert.Equal(t, 1, rec.Count(surface.KindUnbindTooltip))
	assert.True(t, fs[0].State().Hidden())
	assert.Equal(t, 1, rec.Count(surface.KindAddLayer))
}
