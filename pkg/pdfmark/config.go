package pdfmark

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 运行配置
type Config struct {
	RenderScale    float64           `yaml:"render_scale"`
	LineHeight     float64           `yaml:"line_height"`
	FontPath       string            `yaml:"font_path,omitempty"`
	OutputName     string            `yaml:"output_name"`
	LogLevel       string            `yaml:"log_level"`
	PreviewWorkers int               `yaml:"preview_workers"`
	Watermarks     []WatermarkConfig `yaml:"watermarks"`
}

// WatermarkConfig 一个水印描述符及其作用的页面
// Pages 为空时按模式展开到所有页面，否则只展开到列出的页面
type WatermarkConfig struct {
	WatermarkDescriptor `yaml:",inline"`
	Pages               []int `yaml:"pages,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RenderScale:    1.5,
		LineHeight:     DefaultLineHeight,
		OutputName:     defaultOutputName,
		LogLevel:       "warn",
		PreviewWorkers: 4,
		Watermarks: []WatermarkConfig{
			{WatermarkDescriptor: DefaultDescriptor()},
		},
	}
}

// LoadConfig 读取 YAML 配置，未设置的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	// 文件中出现 watermarks 时整体替换默认列表
	cfg.Watermarks = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Watermarks == nil {
		cfg.Watermarks = DefaultConfig().Watermarks
	}
	for i := range cfg.Watermarks {
		cfg.Watermarks[i].fillDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAML 省略 opacity 时使用编辑器表单的默认值；显式写出的 0 保留
func (w *WatermarkConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain WatermarkConfig
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*w = WatermarkConfig(p)
	if !hasMappingKey(value, "opacity") {
		w.Opacity = DefaultDescriptor().Opacity
	}
	return nil
}

func hasMappingKey(node *yaml.Node, key string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

// fillDefaults 为省略的字段补上编辑器表单的默认值
func (w *WatermarkConfig) fillDefaults() {
	def := DefaultDescriptor()
	if w.FontSize == 0 {
		w.FontSize = def.FontSize
	}
	if w.FillColor == "" {
		w.FillColor = def.FillColor
	}
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if !(c.RenderScale > 0) {
		return fmt.Errorf("render_scale must be positive, got %g", c.RenderScale)
	}
	if !(c.LineHeight > 0) {
		return fmt.Errorf("line_height must be positive, got %g", c.LineHeight)
	}
	if c.PreviewWorkers < 0 {
		return fmt.Errorf("preview_workers must not be negative, got %d", c.PreviewWorkers)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	for i, w := range c.Watermarks {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("watermarks[%d]: %w", i, err)
		}
		for _, p := range w.Pages {
			if p < 1 {
				return fmt.Errorf("watermarks[%d]: invalid page %d", i, p)
			}
		}
	}
	return nil
}

// Save 以 YAML 写出配置
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig 配置文件不存在时写出默认配置
func InitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return DefaultConfig().Save(path)
}

// LoadFont 按 FontPath 加载字体，未配置时返回内置字体
func (c *Config) LoadFont() (*Font, error) {
	if c.FontPath == "" {
		return loadDefaultFont()
	}
	return LoadFontFile(c.FontPath)
}
