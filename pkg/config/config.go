package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Content   Content   `envPrefix:"CONTENT_"`
		Tileset   Tileset   `envPrefix:"TILESET_"`
		Frame     Frame     `envPrefix:"FRAME_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tilestream"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	// Content configures where fetched tile bytes are persisted and how the
	// upstream is reached.
	Content struct {
		Store           string        `env:"STORE" envDefault:"map"`
		Path            string        `env:"PATH" envDefault:"content.db"`
		TTL             time.Duration `env:"TTL" envDefault:"0s"`
		UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
		UserAgent       string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
	}

	Tileset struct {
		URL                                 string        `env:"URL,required,notEmpty"`
		MaximumScreenSpaceError             float64       `env:"MAXIMUM_SCREEN_SPACE_ERROR" envDefault:"16"`
		CacheBytes                          int64         `env:"CACHE_BYTES" envDefault:"536870912"`
		MaximumCacheOverflowBytes           int64         `env:"MAXIMUM_CACHE_OVERFLOW_BYTES" envDefault:"536870912"`
		SkipLevelOfDetail                   bool          `env:"SKIP_LEVEL_OF_DETAIL" envDefault:"false"`
		BaseScreenSpaceError                float64       `env:"BASE_SCREEN_SPACE_ERROR" envDefault:"1024"`
		SkipScreenSpaceErrorFactor          float64       `env:"SKIP_SCREEN_SPACE_ERROR_FACTOR" envDefault:"16"`
		SkipLevels                          int           `env:"SKIP_LEVELS" envDefault:"1"`
		ImmediatelyLoadDesiredLevelOfDetail bool          `env:"IMMEDIATELY_LOAD_DESIRED_LEVEL_OF_DETAIL" envDefault:"false"`
		LoadSiblings                        bool          `env:"LOAD_SIBLINGS" envDefault:"false"`
		CullWithChildrenBounds              bool          `env:"CULL_WITH_CHILDREN_BOUNDS" envDefault:"true"`
		CullRequestsWhileMoving             bool          `env:"CULL_REQUESTS_WHILE_MOVING" envDefault:"true"`
		CullRequestsWhileMovingMultiplier   float64       `env:"CULL_REQUESTS_WHILE_MOVING_MULTIPLIER" envDefault:"60"`
		DynamicScreenSpaceError             bool          `env:"DYNAMIC_SCREEN_SPACE_ERROR" envDefault:"true"`
		DynamicScreenSpaceErrorDensity      float64       `env:"DYNAMIC_SCREEN_SPACE_ERROR_DENSITY" envDefault:"0.0002"`
		DynamicScreenSpaceErrorFactor       float64       `env:"DYNAMIC_SCREEN_SPACE_ERROR_FACTOR" envDefault:"24"`
		DynamicScreenSpaceErrorFalloff      float64       `env:"DYNAMIC_SCREEN_SPACE_ERROR_HEIGHT_FALLOFF" envDefault:"0.25"`
		FoveatedScreenSpaceError            bool          `env:"FOVEATED_SCREEN_SPACE_ERROR" envDefault:"true"`
		FoveatedConeSize                    float64       `env:"FOVEATED_CONE_SIZE" envDefault:"0.1"`
		FoveatedMinimumRelaxation           float64       `env:"FOVEATED_MINIMUM_SCREEN_SPACE_ERROR_RELAXATION" envDefault:"0"`
		FoveatedTimeDelay                   time.Duration `env:"FOVEATED_TIME_DELAY" envDefault:"200ms"`
		FoveatedInterpolation               string        `env:"FOVEATED_INTERPOLATION" envDefault:"linear"`
		PreferLeaves                        bool          `env:"PREFER_LEAVES" envDefault:"false"`
		ProgressiveResolutionHeightFraction float64       `env:"PROGRESSIVE_RESOLUTION_HEIGHT_FRACTION" envDefault:"0.3"`
		MaximumRequests                     int           `env:"MAXIMUM_REQUESTS" envDefault:"50"`
		MaximumRequestsPerServer            int           `env:"MAXIMUM_REQUESTS_PER_SERVER" envDefault:"18"`
	}

	// Frame drives the headless frame loop.
	Frame struct {
		Rate   int     `env:"RATE" envDefault:"30"`
		Width  float64 `env:"WIDTH" envDefault:"1920"`
		Height float64 `env:"HEIGHT" envDefault:"1080"`
		Fovy   float64 `env:"FOVY" envDefault:"1.0471975511965976"`
		// CameraPath is a list of "x,y,z" waypoints separated by ";". The
		// camera looks at the tileset root from each one.
		CameraPath     []string      `env:"CAMERA_PATH" envSeparator:";"`
		FlightDuration time.Duration `env:"FLIGHT_DURATION" envDefault:"10s"`
		CameraEasing   string        `env:"CAMERA_EASING" envDefault:"inOutQuad"`
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

	return &cfg, nil
}
