package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

type harness struct {
	src      *source.Static
	textures *resource.TextureStore
	out      *protocol.Mailbox[protocol.BuildResponse]
	worker   *Worker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets wrap replace styles before the worker starts.
func newHarnessWith(t *testing.T, wrap func(*style.Set)) *harness {
	t.Helper()
	h := &harness{
		src:      source.NewStatic("osm", 14),
		textures: resource.NewTextureStore(nil),
		out:      protocol.NewMailbox[protocol.BuildResponse](),
	}
	set := style.NewSet(config.Styles{
		Layers:    map[string]string{"roads": "lines", "places": "points"},
		Collision: []string{"points"},
		Textures:  map[string]string{"points": "atlas"},
	}, "osm", resource.NewMeshPool(), h.textures)
	if wrap != nil {
		wrap(set)
	}
	h.worker = New(Params{Source: h.src, Loader: h.src, Styles: set, Textures: h.textures, Out: h.out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func layered(layers map[string][]orb.Geometry) *source.Data {
	d := source.NewData()
	for name, geoms := range layers {
		fc := geojson.NewFeatureCollection()
		for _, g := range geoms {
			fc.Append(geojson.NewFeature(g))
		}
		d.Layers[name] = fc
	}
	return d
}

func descriptor(c coord.Coordinate, generation int) protocol.TileDescriptor {
	key, _ := coord.TileKey(c, "osm", 14, c.Z)
	return protocol.TileDescriptor{Key: key, Source: "osm", Coords: c, StyleZoom: c.Z, Generation: generation}
}

// collect gathers responses until one carries the done marker.
func (h *harness) collect(t *testing.T) []protocol.BuildResponse {
	t.Helper()
	var got []protocol.BuildResponse
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-h.out.Ready():
			for _, r := range h.out.Drain() {
				got = append(got, r)
				if r.Progress.Done {
					return got
				}
			}
		case <-timeout:
			t.Fatalf("no done marker after %d responses", len(got))
		}
	}
}

func (h *harness) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-h.out.Ready():
		t.Fatalf("unexpected responses: %+v", h.out.Drain())
	case <-time.After(d):
	}
}

func TestBuildPostsStyleGroups(t *testing.T) {
	h := newHarness(t)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{
		"roads":  {orb.LineString{{0, 0}, {1, 1}}, orb.LineString{{2, 2}, {3, 3}}},
		"places": {orb.Point{1, 1}},
	}))

	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 1)})
	responses := h.collect(t)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want one per style group", len(responses))
	}
	if !responses[0].Progress.Start || responses[1].Progress.Start {
		t.Fatalf("start markers = %v, %v", responses[0].Progress, responses[1].Progress)
	}

	meshes := map[string]protocol.MeshData{}
	for _, r := range responses {
		if r.Tile.Generation != 1 || !r.Tile.Loaded || r.Tile.Debug.Features != 3 {
			t.Fatalf("slice = %+v", r.Tile)
		}
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		for name, md := range r.Tile.MeshData {
			meshes[name] = md
		}
	}
	if meshes["lines"].GeometryCount != 2 || meshes["points"].GeometryCount != 1 {
		t.Fatalf("mesh data = %+v", meshes)
	}
	if h.textures.RefCount("atlas") != 1 {
		t.Fatalf("atlas refcount = %d", h.textures.RefCount("atlas"))
	}
}

func TestBuildEmptyTile(t *testing.T) {
	h := newHarness(t)
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(coord.New(0, 0, 1), 4)})
	responses := h.collect(t)
	if len(responses) != 1 {
		t.Fatalf("got %d responses", len(responses))
	}
	r := responses[0]
	if !r.Progress.Start || !r.Progress.Done || len(r.Tile.MeshData) != 0 || r.Tile.Generation != 4 {
		t.Fatalf("empty tile response = %+v", r)
	}
}

func TestBuildLoadError(t *testing.T) {
	h := newHarness(t)
	h.src.SetHook(func(context.Context, coord.Coordinate) error { return errors.New("upstream down") })
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(coord.New(0, 0, 1), 1)})
	responses := h.collect(t)
	if responses[0].Tile.Error == "" || responses[0].Tile.Loaded {
		t.Fatalf("error response = %+v", responses[0].Tile)
	}
}

func TestSourceDataCachedAcrossGenerations(t *testing.T) {
	h := newHarness(t)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"roads": {orb.LineString{{0, 0}, {1, 1}}}}))

	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 1)})
	h.collect(t)
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 2)})
	responses := h.collect(t)
	if responses[0].Tile.Generation != 2 {
		t.Fatalf("generation = %d", responses[0].Tile.Generation)
	}
	if h.src.Loads() != 1 {
		t.Fatalf("source loaded %d times", h.src.Loads())
	}

	h.worker.Post(protocol.RemoveTile{Key: descriptor(c, 2).Key})
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 3)})
	h.collect(t)
	if h.src.Loads() != 2 {
		t.Fatalf("RemoveTile kept cached data: %d loads", h.src.Loads())
	}
}

func blockFirstLoad(src *source.Static) *atomic.Int32 {
	var calls atomic.Int32
	src.SetHook(func(ctx context.Context, _ coord.Coordinate) error {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	return &calls
}

func TestSupersedeCancelsPreviousBuild(t *testing.T) {
	h := newHarness(t)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"places": {orb.Point{1, 1}}}))
	calls := blockFirstLoad(h.src)

	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 1)})
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 2)})

	responses := h.collect(t)
	for _, r := range responses {
		if r.Tile.Generation != 2 {
			t.Fatalf("response from superseded build: %+v", r.Tile)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("loads = %d", calls.Load())
	}
	h.expectSilence(t, 50*time.Millisecond)
	if h.textures.RefCount("atlas") != 1 {
		t.Fatalf("atlas refcount = %d", h.textures.RefCount("atlas"))
	}
}

func TestRemoveTileCancelsBuild(t *testing.T) {
	h := newHarness(t)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"places": {orb.Point{1, 1}}}))
	blockFirstLoad(h.src)

	d := descriptor(c, 1)
	h.worker.Post(protocol.BuildRequest{Tile: d})
	h.worker.Post(protocol.RemoveTile{Key: d.Key})

	h.expectSilence(t, 100*time.Millisecond)
	if h.textures.Len() != 0 {
		t.Fatalf("canceled build retained %d textures", h.textures.Len())
	}
}

// gatedStyle holds a build inside the style until the job is canceled.
type gatedStyle struct {
	style.Style
	jobs     chan context.Context
	entered  chan struct{}
	gateFeed bool
	gateEnd  bool
	gated    bool
}

func gate(set *style.Set, name string, feed, end bool) *gatedStyle {
	g := &gatedStyle{
		Style:    set.Styles[name],
		jobs:     make(chan context.Context, 1),
		entered:  make(chan struct{}),
		gateFeed: feed,
		gateEnd:  end,
	}
	set.Styles[name] = g
	return g
}

func (g *gatedStyle) wait(ctx context.Context) {
	if g.gated {
		return
	}
	g.gated = true
	close(g.entered)
	<-ctx.Done()
}

func (g *gatedStyle) AddFeature(f *geojson.Feature, group style.DrawGroup, fc *style.FeatureContext) {
	g.Style.AddFeature(f, group, fc)
	if g.gateFeed && !g.gated {
		g.wait(<-g.jobs)
	}
}

func (g *gatedStyle) EndData(ctx context.Context, key string) (*style.Data, error) {
	d, err := g.Style.EndData(ctx, key)
	if g.gateEnd && err == nil {
		g.wait(ctx)
	}
	return d, err
}

// captureJobs hands each load's job context to g.
func captureJobs(src *source.Static, g *gatedStyle) {
	src.SetHook(func(ctx context.Context, _ coord.Coordinate) error {
		g.jobs <- ctx
		return nil
	})
}

func TestRemoveTileReleasesFinishedStyleGroup(t *testing.T) {
	var g *gatedStyle
	h := newHarnessWith(t, func(set *style.Set) { g = gate(set, "points", false, true) })
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"places": {orb.Point{1, 1}}}))

	d := descriptor(c, 1)
	h.worker.Post(protocol.BuildRequest{Tile: d})
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("build never reached the style")
	}
	if h.textures.RefCount("atlas") != 1 {
		t.Fatalf("atlas refcount = %d, want 1 while building", h.textures.RefCount("atlas"))
	}

	h.worker.Post(protocol.RemoveTile{Key: d.Key})
	h.expectSilence(t, 100*time.Millisecond)
	if h.textures.RefCount("atlas") != 0 || h.textures.Releases("atlas") != 1 {
		t.Fatalf("atlas refcount = %d, releases = %d", h.textures.RefCount("atlas"), h.textures.Releases("atlas"))
	}
}

func TestRemoveTileDiscardsPartialGeometry(t *testing.T) {
	var g *gatedStyle
	h := newHarnessWith(t, func(set *style.Set) { g = gate(set, "points", true, false) })
	captureJobs(h.src, g)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"places": {orb.Point{1, 1}, orb.Point{2, 2}}}))

	d := descriptor(c, 1)
	h.worker.Post(protocol.BuildRequest{Tile: d})
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("build never reached the style")
	}

	h.worker.Post(protocol.RemoveTile{Key: d.Key})
	h.expectSilence(t, 100*time.Millisecond)
	if g.HasDataForTile(d.Key) {
		t.Fatal("partial style data kept")
	}
	if h.textures.RefCount("atlas") != 0 || h.textures.Releases("atlas") != 1 {
		t.Fatalf("atlas refcount = %d, releases = %d", h.textures.RefCount("atlas"), h.textures.Releases("atlas"))
	}
}

func TestConfigureMissingStyle(t *testing.T) {
	h := newHarness(t)
	c := coord.New(1, 1, 2)
	h.src.Put(c, layered(map[string][]orb.Geometry{"roads": {orb.LineString{{0, 0}, {1, 1}}}}))

	h.worker.Post(protocol.Configure{
		Generation: 2,
		Styles:     []string{"lines"},
		Layers: []protocol.LayerConfig{
			{Name: "roads", Source: "osm", Styles: []string{"missing"}},
			{Name: "nodata", Styles: []string{"lines"}},
			{Name: "other", Source: "elsewhere", Styles: []string{"lines"}},
		},
	})
	h.worker.Post(protocol.BuildRequest{Tile: descriptor(c, 2)})
	responses := h.collect(t)
	if len(responses) != 1 || len(responses[0].Tile.MeshData) != 0 {
		t.Fatalf("responses = %+v", responses)
	}
	if responses[0].Tile.Debug.Features != 1 {
		t.Fatalf("features = %d", responses[0].Tile.Debug.Features)
	}
}

func TestDataForSource(t *testing.T) {
	d := layered(map[string][]orb.Geometry{
		"roads": {orb.Point{0, 0}},
		"water": {orb.Point{0, 0}},
	})

	if got := dataForSource(d, &style.DataSource{}, "roads"); len(got) != 1 || got[0].layer != "roads" {
		t.Fatalf("default layer name = %+v", got)
	}
	if got := dataForSource(d, &style.DataSource{Layer: []string{"water"}}, "roads"); len(got) != 1 || got[0].layer != "water" {
		t.Fatalf("named layer = %+v", got)
	}
	got := dataForSource(d, &style.DataSource{Layer: []string{"roads", "missing", "water"}}, "")
	if len(got) != 2 {
		t.Fatalf("layer list = %+v", got)
	}
	if got := dataForSource(d, nil, "roads"); got != nil {
		t.Fatalf("nil data source = %+v", got)
	}

	d.Layers[source.DefaultLayer] = geojson.NewFeatureCollection()
	if got := dataForSource(d, &style.DataSource{}, "roads"); len(got) != 1 || got[0].layer != "" {
		t.Fatalf("_default layer = %+v", got)
	}
}
