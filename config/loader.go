package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix marks environment variables that address config keys by path,
// e.g. CHRONICLE_EMBEDDING_BATCH_SIZE -> embedding.batch_size.
const envPrefix = "CHRONICLE_"

// DefaultEnvFile is read, when present, before the environment is applied.
const DefaultEnvFile = ".env"

type loadOptions struct {
	envFile   string
	overrides map[string]any
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithEnvFile reads dotenv variables from path instead of DefaultEnvFile.
// An empty path skips the dotenv step.
func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// WithOverrides applies dotted keys (e.g. "log.level") after every other source.
// Empty string values are ignored so unset CLI flags do not clobber settings.
func WithOverrides(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		o.overrides = values
	}
}

// Load builds the configuration from, in increasing precedence: defaults, the
// YAML file at path (optional), the dotenv file, the process environment and
// explicit overrides. The result is validated.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{envFile: DefaultEnvFile}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		data, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("apply %s: %w", path, err)
		}
	}

	if o.envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	if err := loadEnvironment(k); err != nil {
		return nil, err
	}

	for key, value := range o.overrides {
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	return unmarshalAndValidate(k)
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return out, nil
}

func loadEnvironment(k *koanf.Koanf) error {
	mapped := make(map[string]string)
	for _, m := range EnvMappings() {
		mapped[m.EnvVar] = m.ConfigPath
	}

	err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := mapped[key]; ok {
				return path, value
			}
			if strings.HasPrefix(key, envPrefix) {
				return transformEnvKey(strings.TrimPrefix(key, envPrefix)), value
			}
			return "", nil
		},
	}), nil)
	if err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

// transformEnvKey maps SECTION_FIELD_NAME to section.field_name.
func transformEnvKey(s string) string {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '_' })
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

func unmarshalAndValidate(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// rawMap adapts a parsed document to koanf.Provider.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("rawMap does not support ReadBytes")
}

// EnvMapping binds a well-known environment variable to a config path.
type EnvMapping struct {
	EnvVar     string
	ConfigPath string
}

// EnvMappings lists the explicit `env` tags of Config.
func EnvMappings() []EnvMapping {
	return extractMappings(reflect.TypeOf(Config{}), "")
}

func extractMappings(t reflect.Type, prefix string) []EnvMapping {
	var mappings []EnvMapping
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if envVar := field.Tag.Get("env"); envVar != "" {
			mappings = append(mappings, EnvMapping{EnvVar: envVar, ConfigPath: path})
		}
		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			mappings = append(mappings, extractMappings(field.Type, path)...)
		}
	}
	return mappings
}
