package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Source    Source    `envPrefix:"SOURCE_"`
		Styles    Styles    `envPrefix:"STYLES_"`
		Manager   Manager   `envPrefix:"MANAGER_"`
		View      View      `envPrefix:"VIEW_"`
	}

	HTTP struct {
		Enabled bool   `env:"ENABLED" envDefault:"true"`
		Server  Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080" validate:"required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level      string `env:"LEVEL" envDefault:"info"`
		Name       string `env:"NAME" envDefault:"tilestream"`
		Stacktrace bool   `env:"STACKTRACE" envDefault:"false"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tilestream"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Cache configures where fetched source tile payloads are kept between builds.
	Cache struct {
		Backend    string        `env:"BACKEND" envDefault:"memory" validate:"oneof=none memory sqlite redis filesystem"`
		TTL        time.Duration `env:"TTL" envDefault:"24h"`
		Capacity   uint64        `env:"CAPACITY" envDefault:"4096"`
		SQLitePath string        `env:"SQLITE_PATH" envDefault:"file:sources.db?cache=shared&mode=memory"`
		Dir        string        `env:"DIR" envDefault:"./cache"`
		Redis      Redis         `envPrefix:"REDIS_"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD" envDefault:""`
		DB       int    `env:"DB" envDefault:"0"`
	}

	Upstream struct {
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer   string        `env:"REFERER" envDefault:""`
	}

	// Source describes the single GeoJSON tile source the service streams.
	// URL is a template with {z}, {x} and {y} placeholders.
	Source struct {
		Name           string    `env:"NAME" envDefault:"osm" validate:"required"`
		URL            string    `env:"URL" envDefault:"http://localhost:8081/{z}/{x}/{y}.json" validate:"required"`
		MaxZoom        int       `env:"MAX_ZOOM" envDefault:"16" validate:"gte=0,lte=30"`
		MinDisplayZoom int       `env:"MIN_DISPLAY_ZOOM" envDefault:"-1"`
		MaxDisplayZoom int       `env:"MAX_DISPLAY_ZOOM" envDefault:"-1"`
		Bounds         []float64 `env:"BOUNDS" envSeparator:"," validate:"omitempty,len=4"`
	}

	// Styles maps source layers onto headless styles: LAYERS is "layer:style" pairs,
	// COLLISION lists styles built in the collision group and TEXTURES gives a style
	// the texture its data retains.
	Styles struct {
		Layers    map[string]string `env:"LAYERS" envDefault:"roads:lines,water:polygons,places:points"`
		Collision []string          `env:"COLLISION" envSeparator:"," envDefault:"points"`
		Textures  map[string]string `env:"TEXTURES" envDefault:"points:points-atlas"`
	}

	Manager struct {
		ZoomSettle              time.Duration `env:"ZOOM_SETTLE" envDefault:"50ms"`
		BuildInterval           time.Duration `env:"BUILD_INTERVAL" envDefault:"250ms"`
		FlushInterval           time.Duration `env:"FLUSH_INTERVAL" envDefault:"16ms" validate:"gt=0"`
		ProxyDepth              int           `env:"PROXY_DEPTH" envDefault:"1"`
		ChildrenCacheSize       int           `env:"CHILDREN_CACHE_SIZE" envDefault:"0"`
		MaxProxyAncestorDepth   int           `env:"MAX_PROXY_ANCESTOR_DEPTH" envDefault:"7" validate:"gte=1"`
		MaxProxyDescendantDepth int           `env:"MAX_PROXY_DESCENDANT_DEPTH" envDefault:"6" validate:"gte=1"`
	}

	View struct {
		Width   int     `env:"WIDTH" envDefault:"1280" validate:"gt=0"`
		Height  int     `env:"HEIGHT" envDefault:"720" validate:"gt=0"`
		Lon     float64 `env:"LON" envDefault:"0" validate:"gte=-180,lte=180"`
		Lat     float64 `env:"LAT" envDefault:"0" validate:"gte=-85.0511,lte=85.0511"`
		Zoom    float64 `env:"ZOOM" envDefault:"2" validate:"gte=0"`
		MaxZoom int     `env:"MAX_ZOOM" envDefault:"20" validate:"gte=0,lte=30"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
