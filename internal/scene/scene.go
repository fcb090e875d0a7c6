// Package scene runs the loop that owns the view, the tile manager and every
// tile. Workers and HTTP handlers talk to it only through mailboxes.
package scene

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/manager"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/view"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/worker"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

var ErrStopped = errors.New("scene stopped")

// Binding ties a data source to its loader and to the styles its worker
// builds with.
type Binding struct {
	Source source.Source
	Loader source.Loader
	Styles *style.Set
}

type Params struct {
	Bindings []Binding
	Manager  config.Manager
	View     config.View
	Meshes   *resource.MeshPool
	Textures *resource.TextureStore
	Logger   logger.Logger
	// Clock replaces time.Now for the view, for tests.
	Clock func() time.Time
}

type command struct {
	apply func()
	done  chan struct{}
}

type Scene struct {
	cfg      config.Manager
	meshes   *resource.MeshPool
	textures *resource.TextureStore
	logger   logger.Logger

	sources map[string]source.Source
	sets    map[string]*style.Set
	styles  map[string]style.Style
	workers map[string]*worker.Worker

	responses *protocol.Mailbox[protocol.BuildResponse]
	commands  *protocol.Mailbox[command]
	stopped   chan struct{}

	// owned by the loop
	generation int
	view       *view.View
	manager    *manager.Manager
	redraws    int
	buildsDone int

	snapshot atomic.Pointer[Snapshot]
}

var _ manager.Scene = (*Scene)(nil)

func New(p Params) *Scene {
	l := p.Logger
	if l == nil {
		l = logger.NewNop()
	}
	if p.Meshes == nil {
		p.Meshes = resource.NewMeshPool()
	}
	if p.Textures == nil {
		p.Textures = resource.NewTextureStore(l)
	}
	if p.Manager.FlushInterval <= 0 {
		p.Manager.FlushInterval = 16 * time.Millisecond
	}
	s := &Scene{
		cfg:        p.Manager,
		meshes:     p.Meshes,
		textures:   p.Textures,
		logger:     l,
		sources:    make(map[string]source.Source),
		sets:       make(map[string]*style.Set),
		styles:     make(map[string]style.Style),
		workers:    make(map[string]*worker.Worker),
		responses:  protocol.NewMailbox[protocol.BuildResponse](),
		commands:   protocol.NewMailbox[command](),
		stopped:    make(chan struct{}),
		generation: 1,
	}

	for _, b := range p.Bindings {
		name := b.Source.Name()
		s.sources[name] = b.Source
		s.sets[name] = b.Styles
		if b.Styles != nil {
			for styleName, st := range b.Styles.Styles {
				s.styles[styleName] = st
			}
		}
		s.workers[name] = worker.New(worker.Params{
			Source:   b.Source,
			Loader:   b.Loader,
			Styles:   b.Styles,
			Textures: p.Textures,
			Out:      s.responses,
			Logger:   l,
		})
	}

	var opts []view.Option
	if p.Clock != nil {
		opts = append(opts, view.WithClock(p.Clock))
	}
	s.view = view.New(p.View, opts...)
	s.manager = manager.New(manager.Params{
		Scene:    s,
		View:     s.view,
		Config:   p.Manager,
		Textures: p.Textures,
		Logger:   l,
	})
	s.view.SetPruner(s.manager)
	s.publish()
	return s
}

func (s *Scene) Generation() int                   { return s.generation }
func (s *Scene) Sources() map[string]source.Source { return s.sources }
func (s *Scene) Styles() map[string]style.Style    { return s.styles }

func (s *Scene) WorkerForDataSource(src source.Source) protocol.WorkerHandle {
	w, ok := s.workers[src.Name()]
	if !ok {
		return nil
	}
	return w
}

func (s *Scene) RequestRedraw() {
	s.redraws++
}

func (s *Scene) TileManagerBuildDone() {
	s.buildsDone++
	s.logger.Debug("tile manager build done", "generation", s.generation, "tiles", len(s.manager.Tiles()))
}

// Run starts the workers and the scene loop and blocks until ctx is done.
func (s *Scene) Run(ctx context.Context) error {
	workersCtx, stopWorkers := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(workersCtx)
	for _, name := range s.workerNames() {
		w := s.workers[name]
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	s.configureWorkers()
	s.manager.UpdateTilesForView()
	s.publish()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	s.logger.Info("scene loop started", "sources", len(s.sources), "generation", s.generation)
	for {
		select {
		case <-ctx.Done():
			return s.shutdown(g, stopWorkers)
		case <-s.responses.Ready():
			for _, resp := range s.responses.Drain() {
				s.manager.BuildTileStylesCompleted(resp)
			}
		case <-s.commands.Ready():
			for _, cmd := range s.commands.Drain() {
				cmd.apply()
				close(cmd.done)
			}
		case now := <-ticker.C:
			if s.manager.LoadQueuedTiles(now) == 0 {
				continue
			}
		}
		s.publish()
	}
}

func (s *Scene) shutdown(g *errgroup.Group, stopWorkers context.CancelFunc) error {
	close(s.stopped)
	s.manager.Destroy()
	stopWorkers()
	err := g.Wait()

	// results that arrived after the tiles were destroyed
	for _, resp := range s.responses.Drain() {
		tile.AbortBuild(s.textures, resp.Tile)
	}
	// callers of commands never applied see stopped
	s.commands.Drain()
	s.publish()
	s.logger.Info("scene loop stopped", "textures", s.textures.Len(), "meshes", s.meshes.Live())
	return err
}

func (s *Scene) workerNames() []string {
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scene) configureWorkers() {
	for _, name := range s.workerNames() {
		msg := protocol.Configure{Generation: s.generation}
		if set := s.sets[name]; set != nil {
			msg.Layers = set.LayerConfigs()
			msg.Styles = set.StyleNames()
		}
		s.workers[name].Post(msg)
	}
}

// do runs fn on the loop and waits for it.
func (s *Scene) do(ctx context.Context, fn func()) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}
	cmd := command{apply: fn, done: make(chan struct{})}
	s.commands.Post(cmd)
	select {
	case <-cmd.done:
		return nil
	case <-s.stopped:
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetView moves the camera and runs an update cycle.
func (s *Scene) SetView(ctx context.Context, lon, lat, zoom float64) error {
	return s.do(ctx, func() {
		s.view.SetCenter(lon, lat)
		s.view.SetZoom(zoom)
		s.manager.UpdateTilesForView()
	})
}

// Reload starts a new generation: workers are reconfigured and every live
// tile is rebuilt. Results of the previous generation are discarded.
func (s *Scene) Reload(ctx context.Context) error {
	return s.do(ctx, func() {
		s.generation++
		s.logger.Info("scene reload", "generation", s.generation)
		s.configureWorkers()
		s.manager.RebuildTiles(tile.BuildOptions{FadeIn: false})
		s.manager.UpdateTilesForView()
	})
}

// Snapshot returns the state published after the last loop iteration.
func (s *Scene) Snapshot() *Snapshot {
	return s.snapshot.Load()
}
