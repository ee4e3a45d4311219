package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/okulev/facs/pkg/fastqscreen"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultWorkDir is the default per-run working directory.
	DefaultWorkDir = "./data/tmp"

	// DefaultSampleInterval is the default memory sampling interval.
	DefaultSampleInterval = "100ms"

	// DefaultScreenBinary is the fastq_screen executable looked up on PATH.
	DefaultScreenBinary = "fastq_screen"

	// DefaultListen is the default reports API listen address.
	DefaultListen = ":8080"

	// envPrefix namespaces environment variable overrides (FACS_*).
	envPrefix = "FACS"
)

// Config is the root configuration for facsbench.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Benchmark BenchmarkConfig `yaml:"benchmark" mapstructure:"benchmark"`
	Screen    ScreenConfig    `yaml:"screen" mapstructure:"screen"`
	Results   ResultsConfig   `yaml:"results" mapstructure:"results"`
	API       APIConfig       `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains application-wide settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// BenchmarkConfig describes one benchmark sweep.
type BenchmarkConfig struct {
	// WorkDir receives the tool's per-run output and is wiped between
	// pairs.
	WorkDir string `yaml:"workdir" mapstructure:"workdir"`

	// FastqDir holds the synthetic read files (*.fastq / *.fq).
	FastqDir string `yaml:"fastq_dir" mapstructure:"fastq_dir"`

	// ReferenceDir holds one subdirectory per reference genome with
	// its bowtie index underneath.
	ReferenceDir string `yaml:"reference_dir" mapstructure:"reference_dir"`

	// Aligner is "bowtie" or "bowtie2".
	Aligner string `yaml:"aligner" mapstructure:"aligner"`

	// Bowtie2Indexes lists fully resolved bowtie2 index paths. Only
	// consulted when Aligner is "bowtie2", since bowtie2 indices have
	// no standard layout under ReferenceDir.
	Bowtie2Indexes []string `yaml:"bowtie2_indexes,omitempty" mapstructure:"bowtie2_indexes"`

	// Threads passed to the tool. Zero falls back to OMP_NUM_THREADS,
	// then to 1, matching the environment contract of the wider
	// benchmark suite.
	Threads int `yaml:"threads" mapstructure:"threads"`

	SampleMemory   bool   `yaml:"sample_memory" mapstructure:"sample_memory"`
	SampleInterval string `yaml:"sample_interval" mapstructure:"sample_interval"`
}

// ParsedSampleInterval returns the sampling interval as a duration.
func (b *BenchmarkConfig) ParsedSampleInterval() (time.Duration, error) {
	return time.ParseDuration(b.SampleInterval)
}

// ScreenConfig locates the external binaries. Installing them is an
// operator concern; this tool only consumes paths.
type ScreenConfig struct {
	Binary      string `yaml:"binary" mapstructure:"binary"`
	BowtiePath  string `yaml:"bowtie" mapstructure:"bowtie"`
	Bowtie2Path string `yaml:"bowtie2" mapstructure:"bowtie2"`
}

// AlignerBinary returns the binary used for version provenance of the
// configured aligner.
func (s *ScreenConfig) AlignerBinary(aligner fastqscreen.Aligner) string {
	if aligner == fastqscreen.AlignerBowtie2 {
		return s.Bowtie2Path
	}

	return s.BowtiePath
}

// ResultsConfig controls where reports end up.
type ResultsConfig struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	CouchDB  CouchDBConfig  `yaml:"couchdb,omitempty" mapstructure:"couchdb"`
	Upload   UploadConfig   `yaml:"upload,omitempty" mapstructure:"upload"`
}

// DatabaseConfig contains report store connection settings. An empty
// driver disables persistence.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// DSN renders the settings as a keyword/value connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// CouchDBConfig configures best-effort report document delivery.
type CouchDBConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URL      string `yaml:"url,omitempty" mapstructure:"url"`
	Database string `yaml:"database,omitempty" mapstructure:"database"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
}

// UploadConfig configures raw artifact upload.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// APIConfig contains reports API server settings.
type APIConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	Auth        APIAuthConfig   `yaml:"auth,omitempty" mapstructure:"auth"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig configures bearer-token authentication. TokenHash is a
// bcrypt hash; the plaintext token never appears in config.
type APIAuthConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	TokenHash string `yaml:"token_hash,omitempty" mapstructure:"token_hash"`
}

// Load reads configuration from the given yaml file, applying FACS_*
// environment overrides on top (FACS_BENCHMARK_THREADS=8 overrides
// benchmark.threads). An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every overridable key so environment-only
// overrides reach AllSettings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("benchmark.workdir", DefaultWorkDir)
	v.SetDefault("benchmark.fastq_dir", "")
	v.SetDefault("benchmark.reference_dir", "")
	v.SetDefault("benchmark.aligner", string(fastqscreen.AlignerBowtie))
	v.SetDefault("benchmark.threads", 0)
	v.SetDefault("benchmark.sample_memory", true)
	v.SetDefault("benchmark.sample_interval", DefaultSampleInterval)

	v.SetDefault("screen.binary", DefaultScreenBinary)
	v.SetDefault("screen.bowtie", "bowtie")
	v.SetDefault("screen.bowtie2", "bowtie2")

	v.SetDefault("results.database.driver", "")
	v.SetDefault("results.database.sqlite.path", "facsbench.db")
	v.SetDefault("results.database.postgres.host", "localhost")
	v.SetDefault("results.database.postgres.port", 5432)
	v.SetDefault("results.database.postgres.user", "")
	v.SetDefault("results.database.postgres.password", "")
	v.SetDefault("results.database.postgres.database", "facsbench")
	v.SetDefault("results.database.postgres.sslmode", "disable")

	v.SetDefault("results.couchdb.enabled", false)
	v.SetDefault("results.couchdb.url", "")
	v.SetDefault("results.couchdb.database", "fastq_screen")
	v.SetDefault("results.couchdb.username", "")
	v.SetDefault("results.couchdb.password", "")

	v.SetDefault("results.upload.s3.enabled", false)
	v.SetDefault("results.upload.s3.bucket", "")
	v.SetDefault("results.upload.s3.prefix", "")
	v.SetDefault("results.upload.s3.region", "")
	v.SetDefault("results.upload.s3.endpoint_url", "")
	v.SetDefault("results.upload.s3.access_key_id", "")
	v.SetDefault("results.upload.s3.secret_access_key", "")
	v.SetDefault("results.upload.s3.force_path_style", false)

	v.SetDefault("api.listen", DefaultListen)
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", 120)
	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.token_hash", "")
}

// applyDefaults fills values that cannot come from static viper
// defaults.
func (c *Config) applyDefaults() {
	if c.Benchmark.Threads == 0 {
		c.Benchmark.Threads = threadsFromEnv()
	}
}

// threadsFromEnv honors OMP_NUM_THREADS the way the rest of the
// benchmark suite does.
func threadsFromEnv() int {
	if raw := os.Getenv("OMP_NUM_THREADS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}

	return 1
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	aligner := fastqscreen.Aligner(c.Benchmark.Aligner)
	if !aligner.Valid() {
		return fmt.Errorf("benchmark.aligner: unknown aligner %q", c.Benchmark.Aligner)
	}

	if c.Benchmark.Threads <= 0 {
		return fmt.Errorf("benchmark.threads must be positive, got %d", c.Benchmark.Threads)
	}

	if c.Benchmark.FastqDir == "" {
		return fmt.Errorf("benchmark.fastq_dir is required")
	}

	if aligner == fastqscreen.AlignerBowtie && c.Benchmark.ReferenceDir == "" {
		return fmt.Errorf("benchmark.reference_dir is required for bowtie")
	}

	if aligner == fastqscreen.AlignerBowtie2 && len(c.Benchmark.Bowtie2Indexes) == 0 {
		return fmt.Errorf("benchmark.bowtie2_indexes is required for bowtie2")
	}

	if c.Benchmark.WorkDir == "" {
		return fmt.Errorf("benchmark.workdir is required")
	}

	if _, err := c.Benchmark.ParsedSampleInterval(); err != nil {
		return fmt.Errorf("benchmark.sample_interval: %w", err)
	}

	switch c.Results.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("results.database.driver: unsupported driver %q", c.Results.Database.Driver)
	}

	if c.Results.CouchDB.Enabled && c.Results.CouchDB.URL == "" {
		return fmt.Errorf("results.couchdb.url is required when couchdb delivery is enabled")
	}

	if c.Results.Upload.S3.Enabled && c.Results.Upload.S3.Bucket == "" {
		return fmt.Errorf("results.upload.s3.bucket is required when s3 upload is enabled")
	}

	if c.API.Auth.Enabled && c.API.Auth.TokenHash == "" {
		return fmt.Errorf("api.auth.token_hash is required when api auth is enabled")
	}

	return nil
}
