// Package worker builds tile geometry off the scene loop. There is one worker
// per data source; it receives requests through its inbox and posts finished
// style groups back as build responses.
package worker

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

// ResponseSink receives build responses; it must never block.
type ResponseSink interface {
	Post(protocol.BuildResponse)
}

type Params struct {
	Source   source.Source
	Loader   source.Loader
	Styles   *style.Set
	Textures *resource.TextureStore
	Out      ResponseSink
	Logger   logger.Logger
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// jobConfig is an immutable snapshot handed to each job.
type jobConfig struct {
	generation int
	styles     map[string]style.Style
	layers     []style.Layer
}

type Worker struct {
	source   source.Source
	loader   source.Loader
	all      *style.Set
	textures *resource.TextureStore
	out      ResponseSink
	logger   logger.Logger
	inbox    *protocol.Mailbox[protocol.Message]

	// owned by the Run goroutine
	cfg  *jobConfig
	jobs map[string]*job
	wg   sync.WaitGroup

	dataMu sync.Mutex
	data   map[string]*source.Data
}

func New(p Params) *Worker {
	l := p.Logger
	if l == nil {
		l = logger.NewNop()
	}
	set := p.Styles
	if set == nil {
		set = &style.Set{Styles: map[string]style.Style{}}
	}
	return &Worker{
		source:   p.Source,
		loader:   p.Loader,
		all:      set,
		textures: p.Textures,
		out:      p.Out,
		logger:   l,
		inbox:    protocol.NewMailbox[protocol.Message](),
		cfg: &jobConfig{
			styles: set.Styles,
			layers: set.Layers,
		},
		jobs: make(map[string]*job),
		data: make(map[string]*source.Data),
	}
}

var _ protocol.WorkerHandle = (*Worker)(nil)

// Post queues a message for the worker. It never blocks.
func (w *Worker) Post(m protocol.Message) {
	w.inbox.Post(m)
}

func (w *Worker) SourceName() string {
	return w.source.Name()
}

// Run processes the inbox until ctx is done, then cancels and waits for all
// jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "source", w.source.Name())
	defer func() {
		for key, j := range w.jobs {
			j.cancel()
			delete(w.jobs, key)
		}
		w.wg.Wait()
		w.logger.Info("worker stopped", "source", w.source.Name())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.inbox.Ready():
			for _, m := range w.inbox.Drain() {
				w.handle(ctx, m)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, m protocol.Message) {
	switch m := m.(type) {
	case protocol.BuildRequest:
		w.startBuild(ctx, m.Tile)
	case protocol.RemoveTile:
		w.removeTile(m.Key)
	case protocol.Configure:
		w.configure(m)
	default:
		w.logger.Warn("unknown worker message", "source", w.source.Name(), "type", m)
	}
}

// startBuild supersedes any job running for the same key: the old job is
// canceled and awaited so two builds of one tile never overlap.
func (w *Worker) startBuild(ctx context.Context, desc protocol.TileDescriptor) {
	w.stopJob(desc.Key)

	jctx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	w.jobs[desc.Key] = j

	cfg := w.cfg
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(j.done)
		defer cancel()
		w.build(jctx, desc, cfg)
	}()
}

func (w *Worker) stopJob(key string) {
	j, ok := w.jobs[key]
	if !ok {
		return
	}
	j.cancel()
	<-j.done
	delete(w.jobs, key)
}

func (w *Worker) removeTile(key string) {
	w.stopJob(key)
	w.dataMu.Lock()
	delete(w.data, key)
	w.dataMu.Unlock()
	w.logger.Debug("worker removed tile", "source", w.source.Name(), "tile", key)
}

func (w *Worker) configure(m protocol.Configure) {
	styles := make(map[string]style.Style, len(m.Styles))
	for _, name := range m.Styles {
		if st, ok := w.all.Styles[name]; ok {
			styles[name] = st
		} else {
			w.logger.Warn("configured style not available", "source", w.source.Name(), "style", name)
		}
	}
	w.cfg = &jobConfig{
		generation: m.Generation,
		styles:     styles,
		layers:     style.LayersFromConfig(m.Layers),
	}
	w.logger.Debug("worker configured", "source", w.source.Name(), "generation", m.Generation,
		"styles", len(styles), "layers", len(m.Layers))
}

// Pending reports the number of unprocessed inbox messages.
func (w *Worker) Pending() int {
	return w.inbox.Len()
}

func (w *Worker) cachedData(key string) (*source.Data, bool) {
	w.dataMu.Lock()
	defer w.dataMu.Unlock()
	d, ok := w.data[key]
	return d, ok
}

func (w *Worker) storeData(key string, d *source.Data) {
	w.dataMu.Lock()
	defer w.dataMu.Unlock()
	w.data[key] = d
}
