package http_server

import (
	"context"
	"net"
	"net/http"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

// NewServer builds the HTTP server. Request contexts derive from ctx, so
// values such as the logger are visible to handlers.
func NewServer(ctx context.Context, cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
