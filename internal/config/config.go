package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appdefaults "github.com/memorylink/vision-server/config"

	"github.com/memorylink/vision-server/internal/logger"
	"github.com/spf13/viper"
)

// SystemConfig groups the listen address settings.
type SystemConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// VLMConfig describes the Ollama vision backend.
type VLMConfig struct {
	URL            string `mapstructure:"url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	IdlePrompt     string `mapstructure:"idle_prompt"`
}

// SchedulerConfig controls the per-connection frame scheduler.
type SchedulerConfig struct {
	FrameProcessIntervalSeconds int      `mapstructure:"frame_process_interval_seconds"`
	TickIntervalMs              int      `mapstructure:"tick_interval_ms"`
	TriggerWords                []string `mapstructure:"trigger_words"`
}

// FacesConfig describes the face encoder capability and reference gallery.
type FacesConfig struct {
	EncoderURL    string  `mapstructure:"encoder_url"`
	KnownFacesDir string  `mapstructure:"known_faces_dir"`
	Tolerance     float64 `mapstructure:"tolerance"`
}

// ForwardConfig describes the secondary deep-inference receiver.
type ForwardConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// MemoryConfig describes the object-memory service.
type MemoryConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Config is the fully derived server configuration.
type Config struct {
	RootDir     string          `mapstructure:"-"`
	HTTPAddr    string          `mapstructure:"http_addr"`
	TLSCertPath string          `mapstructure:"tls_cert_path"`
	TLSKeyPath  string          `mapstructure:"tls_key_path"`
	TLSRequired bool            `mapstructure:"tls_required"`
	TLSDisable  bool            `mapstructure:"tls_disable"`
	HistoryDir  string          `mapstructure:"history_dir"`
	System      SystemConfig    `mapstructure:"system_config"`
	VLM         VLMConfig       `mapstructure:"vlm"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Faces       FacesConfig     `mapstructure:"faces"`
	Forward     ForwardConfig   `mapstructure:"forward"`
	Memory      MemoryConfig    `mapstructure:"memory"`
	Log         logger.Config   `mapstructure:"log"`
}

// VLMTimeout returns the request deadline for describe calls. Zero means no
// deadline, an explicit choice for slow local models.
func (c Config) VLMTimeout() time.Duration {
	if c.VLM.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.VLM.TimeoutSeconds) * time.Second
}

// FrameProcessInterval returns the minimum gap between periodic inferences.
func (c Config) FrameProcessInterval() time.Duration {
	return time.Duration(c.Scheduler.FrameProcessIntervalSeconds) * time.Second
}

// TickInterval returns the periodic scanner's poll interval.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalMs) * time.Millisecond
}

// ForwardTimeout returns the deadline for a single forward dispatch.
func (c Config) ForwardTimeout() time.Duration {
	return time.Duration(c.Forward.TimeoutSeconds) * time.Second
}

// MemoryTimeout returns the deadline for object-memory queries.
func (c Config) MemoryTimeout() time.Duration {
	return time.Duration(c.Memory.TimeoutSeconds) * time.Second
}

// Load reads configuration from the embedded defaults, an optional conf.yaml
// in the discovered root directory, and MEMORYLINK_* environment variables.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}
	return load(rootDir, filepath.Join(rootDir, "conf.yaml"), false)
}

// LoadConfig reads configuration from an explicit file path.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}
	rootDir := strings.TrimSpace(os.Getenv("MEMORYLINK_ROOT_DIR"))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
	}
	return load(rootDir, absPath, true)
}

func load(rootDir string, configPath string, required bool) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("memorylink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	if err := v.MergeInConfig(); err != nil {
		if required || !configMissing(err) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	return cfg, nil
}

func configMissing(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "")
	v.SetDefault("tls_required", false)
	v.SetDefault("tls_disable", false)
	v.SetDefault("tls_cert_path", "")
	v.SetDefault("tls_key_path", "")
	v.SetDefault("history_dir", filepath.Join("data", "history"))
	v.SetDefault("vlm.url", "http://localhost:11434")
	v.SetDefault("vlm.model", "llava")
	v.SetDefault("vlm.timeout_seconds", 60)
	v.SetDefault("vlm.idle_prompt", "Analyze this frame according to the system instructions.")
	v.SetDefault("scheduler.frame_process_interval_seconds", 10)
	v.SetDefault("scheduler.tick_interval_ms", 100)
	v.SetDefault("faces.known_faces_dir", "known_faces")
	v.SetDefault("faces.tolerance", 0.6)
	v.SetDefault("forward.timeout_seconds", 2)
	v.SetDefault("memory.timeout_seconds", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "vision-server.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.System.Host
	port := cfg.System.Port
	if port == 0 {
		port = 8000
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("MEMORYLINK_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.HistoryDir = resolvePath(cfg.RootDir, cfg.HistoryDir, filepath.Join("data", "history"))
	cfg.Faces.KnownFacesDir = resolvePath(cfg.RootDir, cfg.Faces.KnownFacesDir, "known_faces")
	cfg.TLSCertPath = resolveOptionalPath(cfg.RootDir, cfg.TLSCertPath)
	cfg.TLSKeyPath = resolveOptionalPath(cfg.RootDir, cfg.TLSKeyPath)
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func resolveOptionalPath(rootDir string, configured string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
