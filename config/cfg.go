// Package config loads and validates livepager program configuration.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
	"go.uber.org/zap"

	livepager "github.com/porticus-lab/go-live-pager"
)

// AppName is used for logger naming and temporary file prefixes.
const AppName = "livepager"

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	PageSettings struct {
		Size        string  `yaml:"size" validate:"oneof=A3 A4 A5 Letter Legal"`
		Orientation string  `yaml:"orientation" validate:"oneof=portrait landscape"`
		PaddingPx   float64 `yaml:"padding_px" validate:"gte=0"`
		PixelsPerMM float64 `yaml:"pixels_per_mm" validate:"gt=0"`
	}

	ObserverSettings struct {
		Debounce       time.Duration `yaml:"debounce" validate:"gt=0"`
		RemeasureDelay time.Duration `yaml:"remeasure_delay" validate:"gt=0"`
	}

	BrowserSettings struct {
		ChromePath   string        `yaml:"chrome_path" sanitize:"path_clean"`
		NoSandbox    bool          `yaml:"no_sandbox"`
		AutoDownload bool          `yaml:"auto_download"`
		Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	}

	ServerSettings struct {
		Listen     string        `yaml:"listen" validate:"required,hostname_port"`
		SessionTTL time.Duration `yaml:"session_ttl" validate:"gt=0"`
		RateLimit  int           `yaml:"rate_limit" validate:"gte=0"`
	}

	Config struct {
		Version  int              `yaml:"version" validate:"eq=1"`
		Page     PageSettings     `yaml:"page"`
		Observer ObserverSettings `yaml:"observer"`
		Browser  BrowserSettings  `yaml:"browser"`
		Server   ServerSettings   `yaml:"server"`
		Logging  LoggingConfig    `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// only fields we defined are accepted
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to
// provide sane defaults and performs validation. An empty path yields the
// defaults.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}

// PageConfig converts the page section into a livepager page description.
func (p *PageSettings) PageConfig() (livepager.PageConfig, error) {
	size, err := livepager.PageSizeByName(p.Size)
	if err != nil {
		return livepager.PageConfig{}, err
	}
	pg := livepager.DefaultPageConfig()
	pg.Size = size
	pg.PaddingPx = p.PaddingPx
	if p.PixelsPerMM > 0 {
		pg.PixelsPerMM = p.PixelsPerMM
	}
	if p.Orientation == "landscape" {
		pg.Orientation = livepager.Landscape
	}
	if err := pg.Validate(); err != nil {
		return livepager.PageConfig{}, err
	}
	return pg, nil
}

// ConverterOptions returns the livepager options described by the browser
// and observer sections.
func (c *Config) ConverterOptions(log *zap.Logger) []livepager.Option {
	opts := []livepager.Option{
		livepager.WithTimeout(c.Browser.Timeout),
		livepager.WithDebounce(c.Observer.Debounce),
		livepager.WithRemeasureDelay(c.Observer.RemeasureDelay),
	}
	if len(c.Browser.ChromePath) > 0 {
		opts = append(opts, livepager.WithChromePath(c.Browser.ChromePath))
	}
	if c.Browser.NoSandbox {
		opts = append(opts, livepager.WithNoSandbox())
	}
	if c.Browser.AutoDownload {
		opts = append(opts, livepager.WithAutoDownload())
	}
	if log != nil {
		opts = append(opts, livepager.WithLogger(log))
	}
	return opts
}
