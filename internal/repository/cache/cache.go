package cache

import (
	"context"
	"embed"
	"fmt"
)

//go:embed migrations/*.sql
var migrations embed.FS

// TileCacheKey identifies the raw payload of one source tile.
type TileCacheKey struct {
	Source string
	X      int
	Y      int
	Z      int
}

func (k TileCacheKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Source, k.Z, k.X, k.Y)
}

type TileCacheValue []byte

type TileCache interface {
	Get(context.Context, TileCacheKey) (TileCacheValue, bool, error)
	Set(context.Context, TileCacheKey, TileCacheValue) error
}

// NopCache never stores anything.
type NopCache struct{}

var _ TileCache = NopCache{}

func (NopCache) Get(context.Context, TileCacheKey) (TileCacheValue, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(context.Context, TileCacheKey, TileCacheValue) error {
	return nil
}
