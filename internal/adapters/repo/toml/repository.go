package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/pihole-sync/internal/adapters/fsutil"
	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/bnema/pihole-sync/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// ConfigPathKey is the viper key holding the instance configuration path.
	ConfigPathKey     = "config.path"
	DefaultConfigPath = "/etc/pihole-sync/config.toml"

	configFileMode  = 0o600
	configDirMode   = 0o755
	tempFilePattern = ".config-*.toml.tmp"
)

// ErrConfigNotFound is returned by Load when the configuration file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

type Repository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.ConfigRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	cfg.SetDefault(ConfigPathKey, DefaultConfigPath)

	path := cfg.GetString(ConfigPathKey)
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &Repository{path: path, mu: lockForPath(path)}, nil
}

func (r *Repository) Path() string {
	return r.path
}

// Load reads, defaults and validates the configuration. Credential references are
// left unresolved.
func (r *Repository) Load(ctx context.Context) (domain.Config, error) {
	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Config{}, err
	}

	config, err := file.toDomain()
	if err != nil {
		return domain.Config{}, fmt.Errorf("load %s: %w", r.path, err)
	}
	return config, nil
}

func (r *Repository) Save(ctx context.Context, config domain.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file := toSchema(config)
	file.applyDefaults()
	if _, err := file.toDomain(); err != nil {
		return fmt.Errorf("save %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, fmt.Errorf("%w: %s", ErrConfigNotFound, r.path)
		}
		return fileSchema{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode config file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	if err := os.MkdirAll(filepath.Dir(r.path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	return fsutil.WriteFileAtomic(r.path, data, configFileMode, tempFilePattern)
}
