// Package config loads refinery settings from an optional YAML file and
// REFINERY_* environment variables. Environment values win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"refinerycore/internal/blob"
	"refinerycore/pkg/domain"
)

// DataDriver identifies where case data is read from.
type DataDriver string

const (
	DataFile     DataDriver = "file"     // JSON/YAML bundles in CaseDir
	DataMemory   DataDriver = "memory"   // built-in sample cases
	DataSQLite   DataDriver = "sqlite"   // embedded sqlite file
	DataPostgres DataDriver = "postgres" // PostgreSQL server
)

// Environment variable names.
const (
	EnvDataDriver     = "REFINERY_DATA_DRIVER"
	EnvSQLitePath     = "REFINERY_SQLITE_PATH"
	EnvPostgresDSN    = "REFINERY_POSTGRES_DSN"
	EnvCaseDir        = "REFINERY_CASE_DIR"
	EnvBlobDriver     = "REFINERY_BLOB_DRIVER"
	EnvBlobFSRoot     = "REFINERY_BLOB_FS_ROOT"
	EnvS3Bucket       = "REFINERY_BLOB_S3_BUCKET"
	EnvS3Region       = "REFINERY_BLOB_S3_REGION"
	EnvS3Endpoint     = "REFINERY_BLOB_S3_ENDPOINT"
	EnvS3PathStyle    = "REFINERY_BLOB_S3_PATH_STYLE"
	EnvS3AccessKey    = "REFINERY_BLOB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "REFINERY_BLOB_S3_SECRET_ACCESS_KEY"
	EnvS3Prefix       = "REFINERY_BLOB_S3_PREFIX"
	EnvSolver         = "REFINERY_SOLVER"
	EnvSCIPPath       = "REFINERY_SCIP_PATH"
	EnvBaronPath      = "REFINERY_BARON_PATH"
	EnvTimeLimit      = "REFINERY_TIME_LIMIT"
	EnvGap            = "REFINERY_GAP"
	EnvLogLevel       = "REFINERY_LOG_LEVEL"
	EnvLogDevelopment = "REFINERY_LOG_DEVELOPMENT"
)

// Data selects the case data source.
type Data struct {
	Driver      DataDriver `yaml:"driver"`
	SQLitePath  string     `yaml:"sqlite_path"`
	PostgresDSN string     `yaml:"postgres_dsn"`
	CaseDir     string     `yaml:"case_dir"`
}

// S3 mirrors blob.S3Config with YAML tags.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

// Blob selects the artifact store.
type Blob struct {
	Driver blob.Driver `yaml:"driver"`
	FSRoot string      `yaml:"fs_root"`
	S3     S3          `yaml:"s3"`
}

// Solver holds solve defaults. Options are passed to the selected solver
// verbatim.
type Solver struct {
	Name      string            `yaml:"name"`
	SCIPPath  string            `yaml:"scip_path"`
	BaronPath string            `yaml:"baron_path"`
	TimeLimit time.Duration     `yaml:"time_limit"`
	Gap       float64           `yaml:"gap"`
	Options   map[string]string `yaml:"options"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the full runtime configuration.
type Config struct {
	Data   Data   `yaml:"data"`
	Blob   Blob   `yaml:"blob"`
	Solver Solver `yaml:"solver"`
	Log    Log    `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Data: Data{
			Driver:     DataSQLite,
			SQLitePath: "refinery.db",
			CaseDir:    "cases",
		},
		Blob: Blob{
			Driver: blob.DriverFilesystem,
			FSRoot: "artifacts",
		},
		Solver: Solver{
			Name:      "scip",
			SCIPPath:  "scip",
			BaronPath: "baron",
			TimeLimit: 10 * time.Minute,
			Gap:       1e-4,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Decode(bytes.NewReader(raw)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays YAML from r. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overlays the REFINERY_* variables visible through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var driver, blobDriver string
	str(EnvDataDriver, &driver)
	if driver != "" {
		c.Data.Driver = DataDriver(strings.ToLower(driver))
	}
	str(EnvSQLitePath, &c.Data.SQLitePath)
	str(EnvPostgresDSN, &c.Data.PostgresDSN)
	str(EnvCaseDir, &c.Data.CaseDir)
	str(EnvBlobDriver, &blobDriver)
	if blobDriver != "" {
		c.Blob.Driver = blob.Driver(strings.ToLower(blobDriver))
	}
	str(EnvBlobFSRoot, &c.Blob.FSRoot)
	str(EnvS3Bucket, &c.Blob.S3.Bucket)
	str(EnvS3Region, &c.Blob.S3.Region)
	str(EnvS3Endpoint, &c.Blob.S3.Endpoint)
	str(EnvS3AccessKey, &c.Blob.S3.AccessKeyID)
	str(EnvS3SecretKey, &c.Blob.S3.SecretAccessKey)
	str(EnvS3Prefix, &c.Blob.S3.Prefix)
	str(EnvSolver, &c.Solver.Name)
	str(EnvSCIPPath, &c.Solver.SCIPPath)
	str(EnvBaronPath, &c.Solver.BaronPath)
	str(EnvLogLevel, &c.Log.Level)

	if v, ok := lookup(EnvS3PathStyle); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.ConfigError{Field: EnvS3PathStyle, Value: v, Reason: "not a boolean"}
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup(EnvLogDevelopment); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.ConfigError{Field: EnvLogDevelopment, Value: v, Reason: "not a boolean"}
		}
		c.Log.Development = b
	}
	if v, ok := lookup(EnvTimeLimit); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return domain.ConfigError{Field: EnvTimeLimit, Value: v, Reason: "not a duration"}
		}
		c.Solver.TimeLimit = d
	}
	if v, ok := lookup(EnvGap); ok && v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.ConfigError{Field: EnvGap, Value: v, Reason: "not a number"}
		}
		c.Solver.Gap = g
	}
	return nil
}

// Validate checks every field before any build work starts.
func (c Config) Validate() error {
	switch c.Data.Driver {
	case DataFile:
		if c.Data.CaseDir == "" {
			return domain.ConfigError{Field: "data.case_dir", Reason: "required for the file driver"}
		}
	case DataMemory, DataPostgres:
	case DataSQLite:
		if c.Data.SQLitePath == "" {
			return domain.ConfigError{Field: "data.sqlite_path", Reason: "required for the sqlite driver"}
		}
	default:
		return domain.ConfigError{Field: "data.driver", Value: string(c.Data.Driver), Reason: "unknown data driver"}
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return domain.ConfigError{Field: "blob.s3.bucket", Reason: "required for the s3 driver"}
		}
	default:
		return domain.ConfigError{Field: "blob.driver", Value: string(c.Blob.Driver), Reason: "unknown blob driver"}
	}
	if c.Solver.Name == "" {
		return domain.ConfigError{Field: "solver.name", Reason: "no solver selected"}
	}
	if c.Solver.TimeLimit < 0 {
		return domain.ConfigError{Field: "solver.time_limit", Value: c.Solver.TimeLimit.String(), Reason: "negative time limit"}
	}
	if c.Solver.Gap < 0 || c.Solver.Gap >= 1 {
		return domain.ConfigError{Field: "solver.gap", Value: strconv.FormatFloat(c.Solver.Gap, 'g', -1, 64), Reason: "relative gap must be in [0,1)"}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return domain.ConfigError{Field: "log.level", Value: c.Log.Level, Reason: "unknown log level"}
	}
	return nil
}

// BlobConfig converts the artifact settings for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: c.Blob.Driver,
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			Prefix:          c.Blob.S3.Prefix,
		},
	}
}
