// Package config loads mosaic configuration.
//
// A config file is CUE. It is unified with the embedded #Config schema,
// which supplies defaults and rejects unknown fields, then decoded. MOSAIC_*
// environment variables override the result:
//
//	MOSAIC_ZONE            zone
//	MOSAIC_ADDR            server.addr
//	MOSAIC_WORKBOOK        server.workbook
//	MOSAIC_JWT_SECRET      server.jwt_secret
//	MOSAIC_ENDPOINT        client.endpoint
//	MOSAIC_STORE           client.store
//	MOSAIC_REDIS_ADDR      client.redis_addr
//	MOSAIC_SYNC_INTERVAL   client.sync_interval
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSrc string

// Config is the resolved configuration.
type Config struct {
	Zone   string
	Server Server
	Client Client
}

// Server configures `mosaic serve`.
type Server struct {
	Addr      string
	Workbook  string // SQLite file holding the remote workbooks
	JWTSecret string
	TokenTTL  time.Duration
	RateRPS   float64
	RateBurst int
}

// Client configures the device side.
type Client struct {
	Endpoint     string
	Store        string // Local queue store path
	SyncInterval time.Duration
	CacheTTL     time.Duration
	RedisAddr    string // Shared roster cache; empty uses the local store
	RateRPS      float64
	RateBurst    int
}

// Error reports an invalid config file.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("config %s:%d:%d: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "config: " + e.Message
}

type rateLimit struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// document mirrors #Config.
type document struct {
	Zone   string `json:"zone"`
	Server struct {
		Addr      string    `json:"addr"`
		Workbook  string    `json:"workbook"`
		JWTSecret string    `json:"jwt_secret"`
		TokenTTL  string    `json:"token_ttl"`
		RateLimit rateLimit `json:"rate_limit"`
	} `json:"server"`
	Client struct {
		Endpoint     string    `json:"endpoint"`
		Store        string    `json:"store"`
		SyncInterval string    `json:"sync_interval"`
		CacheTTL     string    `json:"cache_ttl"`
		RedisAddr    string    `json:"redis_addr"`
		RateLimit    rateLimit `json:"rate_limit"`
	} `json:"client"`
}

// Default returns the schema defaults with environment overrides applied.
func Default() (Config, error) {
	return Parse(nil, "")
}

// Load reads the CUE file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes CUE source. filename is used in error positions.
func Parse(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if len(src) > 0 {
		file := ctx.CompileBytes(src, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, formatCUEError(err)
		}
		v = v.Unify(file)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var doc document
	if err := v.Decode(&doc); err != nil {
		return Config{}, formatCUEError(err)
	}
	applyEnv(&doc)
	return doc.resolve()
}

func applyEnv(doc *document) {
	doc.Zone = getEnv("MOSAIC_ZONE", doc.Zone)
	doc.Server.Addr = getEnv("MOSAIC_ADDR", doc.Server.Addr)
	doc.Server.Workbook = getEnv("MOSAIC_WORKBOOK", doc.Server.Workbook)
	doc.Server.JWTSecret = getEnv("MOSAIC_JWT_SECRET", doc.Server.JWTSecret)
	doc.Client.Endpoint = getEnv("MOSAIC_ENDPOINT", doc.Client.Endpoint)
	doc.Client.Store = getEnv("MOSAIC_STORE", doc.Client.Store)
	doc.Client.RedisAddr = getEnv("MOSAIC_REDIS_ADDR", doc.Client.RedisAddr)
	doc.Client.SyncInterval = getEnv("MOSAIC_SYNC_INTERVAL", doc.Client.SyncInterval)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (d document) resolve() (Config, error) {
	cfg := Config{
		Zone: d.Zone,
		Server: Server{
			Addr:      d.Server.Addr,
			Workbook:  d.Server.Workbook,
			JWTSecret: d.Server.JWTSecret,
			RateRPS:   d.Server.RateLimit.RPS,
			RateBurst: d.Server.RateLimit.Burst,
		},
		Client: Client{
			Endpoint:  d.Client.Endpoint,
			Store:     d.Client.Store,
			RedisAddr: d.Client.RedisAddr,
			RateRPS:   d.Client.RateLimit.RPS,
			RateBurst: d.Client.RateLimit.Burst,
		},
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"server.token_ttl", d.Server.TokenTTL, &cfg.Server.TokenTTL},
		{"client.sync_interval", d.Client.SyncInterval, &cfg.Client.SyncInterval},
		{"client.cache_ttl", d.Client.CacheTTL, &cfg.Client.CacheTTL},
	}
	for _, du := range durations {
		parsed, err := time.ParseDuration(du.raw)
		if err != nil {
			return Config{}, &Error{Message: fmt.Sprintf("%s: %v", du.field, err)}
		}
		if parsed <= 0 {
			return Config{}, &Error{Message: du.field + ": must be positive"}
		}
		*du.dst = parsed
	}

	if _, err := time.LoadLocation(cfg.Zone); err != nil {
		return Config{}, &Error{Message: fmt.Sprintf("zone: %v", err)}
	}
	return cfg, nil
}

// Location returns the configured zone. Parse has already checked it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireSecret reports an error when the server has no signing secret.
func (s Server) RequireSecret() error {
	if s.JWTSecret == "" {
		return &Error{Message: "server.jwt_secret is required (or set MOSAIC_JWT_SECRET)"}
	}
	return nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Message: first.Error()}
	if pos := errors.Positions(first); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}
