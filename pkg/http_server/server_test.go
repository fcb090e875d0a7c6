package http_server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

func TestNewServer(t *testing.T) {
	l := logger.NewNop()
	ctx := logger.WithLogger(context.Background(), l)

	srv := NewServer(ctx, config.Server{
		Port:         "9090",
		ReadTimeout:  time.Second,
		WriteTimeout: 2 * time.Second,
		IdleTimeout:  3 * time.Second,
	}, nil)

	if srv.Addr != ":9090" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != time.Second || srv.WriteTimeout != 2*time.Second || srv.IdleTimeout != 3*time.Second {
		t.Errorf("timeouts = %v %v %v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
	var ln net.Listener
	if got := logger.FromContext(srv.BaseContext(ln)); got != l {
		t.Error("base context does not carry the logger")
	}
}
