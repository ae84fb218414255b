package llm

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed settings.yaml
var defaultSettingsYAML []byte

// Settings はchat completionsのモデルとサンプリングパラメータ。
type Settings struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
}

// DefaultSettings は埋め込みの既定値を返す。
func DefaultSettings() Settings {
	var s Settings
	if err := yaml.Unmarshal(defaultSettingsYAML, &s); err != nil {
		panic(fmt.Sprintf("embedded llm settings are invalid: %v", err))
	}
	return s
}

// LoadSettings は既定値にpathのYAMLを重ねて返す。pathが空なら既定値のみ。
// ファイルに書かれていないキーは既定値のまま残る。
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read llm settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse llm settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate は値域を検証する。
func (s Settings) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("llm settings: model is required")
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("llm settings: max_tokens must be positive, got %d", s.MaxTokens)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("llm settings: temperature must be within [0, 2], got %v", s.Temperature)
	}
	if s.TopP <= 0 || s.TopP > 1 {
		return fmt.Errorf("llm settings: top_p must be within (0, 1], got %v", s.TopP)
	}
	return nil
}
