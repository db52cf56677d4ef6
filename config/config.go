package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/playtag/redact"
	"github.com/xeptore/playtag/track"
	"github.com/xeptore/playtag/unit"
)

const DefaultFilename = "playtag.yaml"

type Config struct {
	Log     Log     `yaml:"log"`
	Archive Archive `yaml:"archive"`
	Catalog Catalog `yaml:"catalog"`
	Artwork Artwork `yaml:"artwork"`
	Lyrics  Lyrics  `yaml:"lyrics"`
	Tools   Tools   `yaml:"tools"`
	Cache   Cache   `yaml:"cache"`
	Proxy   Proxy   `yaml:"proxy"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("archive", c.Archive.ToDict()).
		Dict("catalog", c.Catalog.ToDict()).
		Dict("artwork", c.Artwork.ToDict()).
		Dict("lyrics", c.Lyrics.ToDict()).
		Dict("tools", c.Tools.ToDict()).
		Dict("cache", c.Cache.ToDict()).
		Dict("proxy", c.Proxy.ToDict())
}

func (c *Config) SetDefaults() {
	c.Log.setDefaults()
	c.Archive.setDefaults()
	c.Catalog.setDefaults()
	c.Artwork.setDefaults()
	c.Lyrics.setDefaults()
	c.Tools.setDefaults()
	c.Cache.setDefaults()
}

func (c *Config) Validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.Archive.validate(); nil != err {
		return fmt.Errorf("archive config validation failed: %v", err)
	}

	if err := c.Catalog.validate(); nil != err {
		return fmt.Errorf("catalog config validation failed: %v", err)
	}

	if err := c.Artwork.validate(); nil != err {
		return fmt.Errorf("artwork config validation failed: %v", err)
	}

	if err := c.Lyrics.validate(); nil != err {
		return fmt.Errorf("lyrics config validation failed: %v", err)
	}

	if err := c.Tools.validate(); nil != err {
		return fmt.Errorf("tools config validation failed: %v", err)
	}

	if err := c.Proxy.validate(); nil != err {
		return fmt.Errorf("proxy config validation failed: %v", err)
	}

	return nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format).
		Str("file", c.File)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "pretty"
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: trace, debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'json' or 'pretty', got: %s", c.Format)
	}

	return nil
}

type Archive struct {
	OutputDir            string        `yaml:"output_dir"`
	Quality              track.Bitrate `yaml:"quality"`
	Workers              int           `yaml:"workers"`
	TranscodeConcurrency int           `yaml:"transcode_concurrency"`
	TrackCooldown        Duration      `yaml:"track_cooldown"`
}

func (c *Archive) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("output_dir", c.OutputDir).
		Int("quality", int(c.Quality)).
		Int("workers", c.Workers).
		Int("transcode_concurrency", c.TranscodeConcurrency).
		Str("track_cooldown", c.TrackCooldown.String())
}

func (c *Archive) setDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "Downloaded_Playlists"
	}

	if c.Quality == 0 {
		c.Quality = 320
	}

	if c.Workers == 0 {
		c.Workers = 3
	}

	if c.TranscodeConcurrency == 0 {
		c.TranscodeConcurrency = c.Workers
	}

	if c.TrackCooldown.Duration == 0 {
		c.TrackCooldown.Duration = 1 * time.Second
	}
}

func (c *Archive) validate() error {
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}

	if err := c.Quality.Validate(); nil != err {
		return fmt.Errorf("quality: %v", err)
	}

	if c.Workers < 1 {
		return errors.New("workers must be greater than 0")
	}

	if c.TranscodeConcurrency < 1 {
		return errors.New("transcode_concurrency must be greater than 0")
	}

	if c.TrackCooldown.Duration < 0 {
		return errors.New("track_cooldown must not be negative")
	}

	return nil
}

type Retry struct {
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
	MaxDelay   Duration `yaml:"max_delay"`

	// decoded marks a section read from the config file, where an explicit
	// max_retries of 0 disables retries.
	decoded bool
}

const defaultMaxRetries = 2

func (c *Retry) UnmarshalYAML(value *yaml.Node) error {
	type plain Retry

	out := plain{MaxRetries: defaultMaxRetries} //nolint:exhaustruct
	if err := value.Decode(&out); nil != err {
		return err
	}

	*c = Retry(out)
	c.decoded = true

	return nil
}

func (c *Retry) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("max_retries", c.MaxRetries).
		Str("base_delay", c.BaseDelay.String()).
		Str("max_delay", c.MaxDelay.String())
}

func (c *Retry) setDefaults() {
	if c.MaxRetries == 0 && !c.decoded {
		c.MaxRetries = defaultMaxRetries
	}

	if c.BaseDelay.Duration == 0 {
		c.BaseDelay.Duration = 1 * time.Second
	}

	if c.MaxDelay.Duration == 0 {
		c.MaxDelay.Duration = 10 * time.Second
	}
}

func (c *Retry) validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}

	if c.BaseDelay.Duration < 0 {
		return errors.New("base_delay must be greater than 0")
	}

	if c.MaxDelay.Duration < c.BaseDelay.Duration {
		return errors.New("max_delay must not be less than base_delay")
	}

	return nil
}

type Catalog struct {
	BaseURL           string   `yaml:"base_url"`
	Country           string   `yaml:"country"`
	Limit             int      `yaml:"limit"`
	ArtworkSize       int      `yaml:"artwork_size"`
	Timeout           Duration `yaml:"timeout"`
	Retry             Retry    `yaml:"retry"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	CacheTTL          Duration `yaml:"cache_ttl"`
}

func (c *Catalog) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("base_url", c.BaseURL).
		Str("country", c.Country).
		Int("limit", c.Limit).
		Int("artwork_size", c.ArtworkSize).
		Str("timeout", c.Timeout.String()).
		Dict("retry", c.Retry.ToDict()).
		Int("requests_per_minute", c.RequestsPerMinute).
		Str("cache_ttl", c.CacheTTL.String())
}

func (c *Catalog) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://itunes.apple.com/search"
	}

	if c.Limit == 0 {
		c.Limit = 5
	}

	if c.ArtworkSize == 0 {
		c.ArtworkSize = 600
	}

	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = 10 * time.Second
	}

	c.Retry.setDefaults()

	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 20
	}

	if c.CacheTTL.Duration == 0 {
		c.CacheTTL.Duration = 30 * 24 * time.Hour
	}
}

func (c *Catalog) validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}

	if c.Limit < 1 || c.Limit > 200 {
		return fmt.Errorf("limit must be between 1 and 200, got: %d", c.Limit)
	}

	if c.ArtworkSize < 100 {
		return errors.New("artwork_size must be at least 100")
	}

	if c.Timeout.Duration < 0 {
		return errors.New("timeout must be greater than 0")
	}

	if err := c.Retry.validate(); nil != err {
		return fmt.Errorf("retry: %v", err)
	}

	if c.CacheTTL.Duration < 0 {
		return errors.New("cache_ttl must not be negative")
	}

	return nil
}

type Artwork struct {
	Timeout      Duration `yaml:"timeout"`
	MaxBytes     int64    `yaml:"max_bytes"`
	MaxDimension int      `yaml:"max_dimension"`
	Retry        Retry    `yaml:"retry"`
}

func (c *Artwork) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("timeout", c.Timeout.String()).
		Int64("max_bytes", c.MaxBytes).
		Int("max_dimension", c.MaxDimension).
		Dict("retry", c.Retry.ToDict())
}

func (c *Artwork) setDefaults() {
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = 15 * time.Second
	}

	if c.MaxBytes == 0 {
		c.MaxBytes = 5 * unit.Mebibyte
	}

	if c.MaxDimension == 0 {
		c.MaxDimension = 1400
	}

	c.Retry.setDefaults()
}

func (c *Artwork) validate() error {
	if c.Timeout.Duration < 0 {
		return errors.New("timeout must be greater than 0")
	}

	if c.MaxBytes < 1 {
		return errors.New("max_bytes must be greater than 0")
	}

	if c.MaxDimension < 1 {
		return errors.New("max_dimension must be greater than 0")
	}

	if err := c.Retry.validate(); nil != err {
		return fmt.Errorf("retry: %v", err)
	}

	return nil
}

type Lyrics struct {
	Token             string   `yaml:"-"`
	BaseURL           string   `yaml:"base_url"`
	Timeout           Duration `yaml:"timeout"`
	Retry             Retry    `yaml:"retry"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
}

func (c *Lyrics) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("token", redact.String(c.Token)).
		Str("base_url", c.BaseURL).
		Str("timeout", c.Timeout.String()).
		Dict("retry", c.Retry.ToDict()).
		Int("requests_per_minute", c.RequestsPerMinute)
}

func (c *Lyrics) Enabled() bool {
	return len(c.Token) > 0
}

func (c *Lyrics) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.genius.com"
	}

	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = 10 * time.Second
	}

	c.Retry.setDefaults()

	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 60
	}
}

func (c *Lyrics) validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}

	if c.Timeout.Duration < 0 {
		return errors.New("timeout must be greater than 0")
	}

	if err := c.Retry.validate(); nil != err {
		return fmt.Errorf("retry: %v", err)
	}

	return nil
}

type Tools struct {
	YtDlp           string   `yaml:"yt_dlp"`
	FFmpeg          string   `yaml:"ffmpeg"`
	ListTimeout     Duration `yaml:"list_timeout"`
	DownloadTimeout Duration `yaml:"download_timeout"`
	DownloadRetries int      `yaml:"download_retries"`
}

func (c *Tools) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("yt_dlp", c.YtDlp).
		Str("ffmpeg", c.FFmpeg).
		Str("list_timeout", c.ListTimeout.String()).
		Str("download_timeout", c.DownloadTimeout.String()).
		Int("download_retries", c.DownloadRetries)
}

func (c *Tools) setDefaults() {
	if c.YtDlp == "" {
		c.YtDlp = "yt-dlp"
	}

	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}

	if c.ListTimeout.Duration == 0 {
		c.ListTimeout.Duration = 5 * time.Minute
	}

	if c.DownloadTimeout.Duration == 0 {
		c.DownloadTimeout.Duration = 10 * time.Minute
	}

	if c.DownloadRetries == 0 {
		c.DownloadRetries = 2
	}
}

func (c *Tools) validate() error {
	if c.YtDlp == "" {
		return errors.New("yt_dlp is required")
	}

	if c.FFmpeg == "" {
		return errors.New("ffmpeg is required")
	}

	if c.ListTimeout.Duration < 0 || c.DownloadTimeout.Duration < 0 {
		return errors.New("timeouts must be greater than 0")
	}

	if c.DownloadRetries < 0 {
		return errors.New("download_retries must not be negative")
	}

	return nil
}

type Cache struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

func (c *Cache) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("path", c.Path).
		Bool("disabled", c.Disabled)
}

func (c *Cache) setDefaults() {
	if c.Path == "" {
		c.Path = DefaultCachePath()
	}
}

type Proxy struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *Proxy) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("host", c.Host).
		Int("port", c.Port).
		Str("username", c.Username).
		Str("password", redact.String(c.Password))
}

func (c Proxy) Enabled() bool {
	return len(c.Host) > 0 && c.Port > 0
}

func (c *Proxy) validate() error {
	if len(c.Host) > 0 && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", c.Port)
	}

	return nil
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("failed to parse duration: %v", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration: %v", err)
	}

	d.Duration = parsed

	return nil
}

// Load reads filename, or DefaultFilename when filename is empty. A missing
// default file is not an error; defaults are used instead. The returned
// config has defaults applied but is not validated, so that command line
// overrides can still be applied.
func Load(filename string) (*Config, error) {
	var conf Config

	path := lo.Ternary(len(filename) > 0, filename, DefaultFilename)
	data, err := os.ReadFile(path)
	if nil != err {
		if len(filename) > 0 || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
		}
	} else if err := yaml.Unmarshal(data, &conf); nil != err {
		return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	conf.Lyrics.Token = os.Getenv("GENIUS_TOKEN")
	conf.SetDefaults()

	return &conf, nil
}
