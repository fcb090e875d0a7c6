package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
)

const (
	groupCollision    = "collision"
	groupNonCollision = "non-collision"
)

// buildState is the worker-side copy of a tile while it is built.
type buildState struct {
	desc    protocol.TileDescriptor
	loading bool
	loaded  bool
	err     string
	debug   protocol.Debug
}

// slice copies the fields always sent back, plus mesh data when asked.
func (s *buildState) slice(meshData map[string]protocol.MeshData, fields ...protocol.Field) protocol.TileSlice {
	out := protocol.TileSlice{
		Key:        s.desc.Key,
		Loading:    s.loading,
		Loaded:     s.loaded,
		Generation: s.desc.Generation,
		Error:      s.err,
		Debug:      s.debug,
	}
	for _, f := range fields {
		if f == protocol.FieldMeshData {
			out.MeshData = meshData
		}
	}
	return out
}

func (w *Worker) build(ctx context.Context, desc protocol.TileDescriptor, cfg *jobConfig) {
	ctx, span := telemetry.Tracer().Start(ctx, "worker.build")
	defer span.End()
	span.SetAttributes(attribute.String("tile", desc.Key), attribute.Int("generation", desc.Generation))

	st := &buildState{desc: desc, loading: true, debug: desc.Debug}

	data, err := w.loadData(ctx, desc)
	if err != nil {
		if ctx.Err() != nil {
			w.logger.Debug("tile load canceled", "tile", desc.Key)
			return
		}
		st.loading = false
		st.err = err.Error()
		span.RecordError(err)
		w.out.Post(protocol.BuildResponse{Tile: st.slice(nil), Progress: protocol.Progress{Start: true, Done: true}})
		return
	}
	st.loading = false
	st.loaded = true

	start := time.Now()
	if err := w.buildGeometry(ctx, st, data, cfg); err != nil {
		w.discard(desc.Key, cfg)
		return
	}
	st.debug.Rendering = time.Since(start)

	w.sendStyleGroups(ctx, st, cfg)
}

func (w *Worker) loadData(ctx context.Context, desc protocol.TileDescriptor) (*source.Data, error) {
	if d, ok := w.cachedData(desc.Key); ok {
		return d, nil
	}
	d, err := w.loader.Load(ctx, desc.Coords)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = source.NewData()
	}
	w.storeData(desc.Key, d)
	return d, nil
}

// sourceLayer is one feature collection selected for a scene layer.
type sourceLayer struct {
	layer string
	geom  *geojson.FeatureCollection
}

// dataForSource picks the source layers a scene layer draws from: the
// default layer or one named like the scene layer when none is configured,
// otherwise the configured names.
func dataForSource(data *source.Data, ds *style.DataSource, defaultLayer string) []sourceLayer {
	if ds == nil || data == nil {
		return nil
	}
	switch {
	case len(ds.Layer) == 0:
		if fc, ok := data.Layers[source.DefaultLayer]; ok {
			return []sourceLayer{{geom: fc}}
		}
		if defaultLayer != "" {
			return []sourceLayer{{layer: defaultLayer, geom: data.Layers[defaultLayer]}}
		}
	case len(ds.Layer) == 1:
		return []sourceLayer{{layer: ds.Layer[0], geom: data.Layers[ds.Layer[0]]}}
	default:
		var out []sourceLayer
		for _, name := range ds.Layer {
			if fc, ok := data.Layers[name]; ok && fc != nil && fc.Features != nil {
				out = append(out, sourceLayer{layer: name, geom: fc})
			}
		}
		return out
	}
	return nil
}

func (w *Worker) buildGeometry(ctx context.Context, st *buildState, data *source.Data, cfg *jobConfig) error {
	st.debug.Features = 0
	for _, layer := range cfg.layers {
		ds := layer.Data()
		if ds == nil {
			w.logger.Warn("layer was defined without a geometry data source and will not be rendered", "layer", layer.Name())
			continue
		}
		if ds.Source != st.desc.Source {
			continue
		}

		for _, sl := range dataForSource(data, ds, layer.Name()) {
			if sl.geom == nil {
				continue
			}
			for _, f := range sl.geom.Features {
				if f == nil || f.Geometry == nil {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}

				fc := &style.FeatureContext{Tile: st.desc, Source: st.desc.Source, Layer: sl.layer}
				groups := layer.BuildDrawGroups(fc, f)
				if len(groups) == 0 {
					continue
				}
				for _, g := range groups {
					if !g.Visible {
						continue
					}
					s, ok := cfg.styles[g.StyleName()]
					if !ok {
						w.logger.Warn("style not found, skipping layer", "style", g.StyleName(), "layer", layer.Name(), "group", g.Name)
						continue
					}
					gctx := *fc
					gctx.Layers = g.Layers
					s.AddFeature(f, g, &gctx)
				}
				st.debug.Features++
			}
		}
	}
	return nil
}

// sendStyleGroups ends data for every style with data for the tile, in a
// collision and a non-collision group, posting each group as it finishes.
func (w *Worker) sendStyleGroups(ctx context.Context, st *buildState, cfg *jobConfig) {
	key := st.desc.Key
	groups := make(map[string][]style.Style)
	for _, name := range sortedStyleNames(cfg.styles) {
		s := cfg.styles[name]
		if !s.HasDataForTile(key) {
			continue
		}
		g := groupNonCollision
		if s.Collision() {
			g = groupCollision
		}
		groups[g] = append(groups[g], s)
	}

	if len(groups) == 0 {
		if ctx.Err() == nil {
			w.out.Post(protocol.BuildResponse{Tile: st.slice(nil), Progress: protocol.Progress{Start: true, Done: true}})
		}
		return
	}

	var (
		mu        sync.Mutex
		remaining = len(groups)
		started   bool
	)
	eg, egctx := errgroup.WithContext(ctx)
	for name, members := range groups {
		eg.Go(func() error {
			meshData := make(map[string]protocol.MeshData)
			var errs []error
			for _, s := range members {
				d, err := s.EndData(egctx, key)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if d != nil {
					meshData[s.Name()] = d.MeshData()
				}
			}
			err := errors.Join(errs...)

			mu.Lock()
			defer mu.Unlock()
			remaining--
			if err != nil || ctx.Err() != nil {
				w.releaseMeshData(meshData)
				return err
			}
			progress := protocol.Progress{Start: !started, Done: remaining == 0}
			started = true
			w.logger.Debug("finished style group", "group", name, "tile", key)
			w.out.Post(protocol.BuildResponse{Tile: st.slice(meshData, protocol.FieldMeshData), Progress: progress})
			return nil
		})
	}

	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		w.logger.Warn("style group failed", "tile", key, "error", err)
		st.err = err.Error()
		w.out.Post(protocol.BuildResponse{Tile: st.slice(nil), Progress: protocol.Progress{Done: true}})
	}
}

// discard drops partial style data for a canceled build.
func (w *Worker) discard(key string, cfg *jobConfig) {
	for _, s := range cfg.styles {
		if !s.HasDataForTile(key) {
			continue
		}
		d, err := s.EndData(context.Background(), key)
		if err != nil || d == nil {
			continue
		}
		w.releaseMeshData(map[string]protocol.MeshData{s.Name(): d.MeshData()})
	}
	w.logger.Debug("discarded partial tile build", "tile", key)
}

func (w *Worker) releaseMeshData(meshData map[string]protocol.MeshData) {
	if w.textures == nil {
		return
	}
	for _, md := range meshData {
		w.textures.ReleaseAll(md.Textures)
	}
}

func sortedStyleNames(styles map[string]style.Style) []string {
	out := make([]string, 0, len(styles))
	for name := range styles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
