package style

import (
	"github.com/paulmach/orb/geojson"
)

// StaticLayer draws every matching feature of its source layers with a fixed
// set of draw groups.
type StaticLayer struct {
	name   string
	data   *DataSource
	groups []DrawGroup
	filter func(*geojson.Feature) bool
}

func NewStaticLayer(name string, data *DataSource, groups ...DrawGroup) *StaticLayer {
	return &StaticLayer{name: name, data: data, groups: groups}
}

// WithFilter restricts the layer to features for which fn returns true.
func (l *StaticLayer) WithFilter(fn func(*geojson.Feature) bool) *StaticLayer {
	l.filter = fn
	return l
}

var _ Layer = (*StaticLayer)(nil)

func (l *StaticLayer) Name() string      { return l.name }
func (l *StaticLayer) Data() *DataSource { return l.data }

func (l *StaticLayer) BuildDrawGroups(fc *FeatureContext, f *geojson.Feature) []DrawGroup {
	if l.filter != nil && !l.filter(f) {
		return nil
	}
	out := make([]DrawGroup, len(l.groups))
	copy(out, l.groups)
	return out
}
