package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains corpus and data directories.
type Paths struct {
	VideosDir           string `toml:"videos_dir"`
	ValidationVideosDir string `toml:"validation_videos_dir"`
	ValidationGTsDir    string `toml:"validation_gts_dir"`
	DataDir             string `toml:"data_dir"`
}

// Corpus describes frame naming inside clip folders.
type Corpus struct {
	FrameExtension string `toml:"frame_extension"`
	FramePadding   int    `toml:"frame_padding"`
}

// Distribution contains the work-distribution tunables.
type Distribution struct {
	AnnotatorsPerClip int `toml:"annotators_per_clip"`
	ClipsPerBlock     int `toml:"clips_per_block"`
	// Resume is "count" (serve from the number of annotated clips) or
	// "gap" (serve exactly the clips not yet annotated).
	Resume string `toml:"resume"`
	// Saturation is "last_clip" (records on the block's last clip) or
	// "block" (annotators who annotated every clip of the block).
	Saturation string `toml:"saturation"`
	// DegradeOnLedgerError treats a failed history lookup as an empty
	// history instead of failing the request.
	DegradeOnLedgerError bool `toml:"degrade_on_ledger_error"`
	// Seed fixes the random source; 0 seeds from the clock.
	Seed uint64 `toml:"seed"`
}

// Scoring contains detection-matching settings.
type Scoring struct {
	IoUThreshold float64 `toml:"iou_threshold"`
	Workers      int     `toml:"workers"`
}

// Postgres contains PostgreSQL ledger connection details.
type Postgres struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
}

// ConnString returns the DSN, building one from parts when unset.
func (p Postgres) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.DBName)
}

// Storage selects and configures the annotation ledger.
type Storage struct {
	// Backend is "sqlite", "file", or "postgres".
	Backend   string   `toml:"backend"`
	BatchSize int      `toml:"batch_size"`
	Postgres  Postgres `toml:"postgres"`
}

// Redis contains connection settings for the redis reservation backend.
type Redis struct {
	Address        string `toml:"address"`
	Password       string `toml:"password"`
	Database       int    `toml:"database"`
	Prefix         string `toml:"prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Reservation selects how block slots are reserved at assignment time.
type Reservation struct {
	// Backend is "none", "local", or "redis".
	Backend string `toml:"backend"`
	Redis   Redis  `toml:"redis"`
}

// Server contains HTTP API settings.
type Server struct {
	Bind                   string `toml:"bind"`
	SecretKey              string `toml:"secret_key"`
	SessionLifetimeDays    int    `toml:"session_lifetime_days"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - Paths: production and validation corpora, ground truth, data dir
//   - Corpus: frame naming inside clip folders
//   - Distribution: block size, annotator target, resume and saturation policy
//   - Scoring: IoU threshold and batch workers
//   - Storage: ledger backend
//   - Reservation: slot reservation backend
//   - Server: HTTP bind address and identity cookie settings
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Corpus       Corpus       `toml:"corpus"`
	Distribution Distribution `toml:"distribution"`
	Scoring      Scoring      `toml:"scoring"`
	Storage      Storage      `toml:"storage"`
	Reservation  Reservation  `toml:"reservation"`
	Server       Server       `toml:"server"`
	Logging      Logging      `toml:"logging"`
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/annotator/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("annotator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.DataDir, err)
	}
	return nil
}

// SampleConfig returns a commented configuration file.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path, refusing to
// overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file %q already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
