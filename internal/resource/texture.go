package resource

import (
	"errors"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
)

var ErrUnknownTexture = errors.New("unknown texture")

// TextureStore reference counts named textures. Every Retain must be matched
// by exactly one Release; a texture is destroyed when its count reaches zero.
// Styles retain from worker goroutines and tiles release from the scene
// loop, so the store is safe for concurrent use.
type TextureStore struct {
	mu       sync.Mutex
	refs     map[string]int
	released map[string]int
	logger   logger.Logger
}

func NewTextureStore(l logger.Logger) *TextureStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &TextureStore{
		refs:     make(map[string]int),
		released: make(map[string]int),
		logger:   l,
	}
}

func (s *TextureStore) Retain(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[name] == 0 {
		metrics.TexturesLive.Inc()
	}
	s.refs[name]++
}

func (s *TextureStore) Release(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.refs[name]
	if !ok {
		return ErrUnknownTexture
	}
	s.released[name]++
	if n <= 1 {
		delete(s.refs, name)
		metrics.TexturesLive.Dec()
		s.logger.Debug("texture destroyed", "texture", name)
		return nil
	}
	s.refs[name] = n - 1
	return nil
}

// ReleaseAll releases every occurrence in names, skipping unknown textures.
func (s *TextureStore) ReleaseAll(names []string) {
	for _, name := range names {
		if err := s.Release(name); err != nil {
			s.logger.Debug("skipping texture release", "texture", name, "error", err)
		}
	}
}

func (s *TextureStore) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refs[name]
	return ok
}

func (s *TextureStore) RefCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[name]
}

// Len is the number of live textures.
func (s *TextureStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

// Releases reports how many times name has been released in total.
func (s *TextureStore) Releases(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[name]
}
