package ctrlffi

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Config is the file-level configuration of the handler and shell.
type Config struct {
	Log     LogConfig     `yaml:"log" json:"log,omitempty"`
	LibFFI  LibFFIConfig  `yaml:"libffi" json:"libffi,omitempty"`
	Declare []Declaration `yaml:"declare" json:"declare,omitempty" validate:"dive"`
}

// LibFFIConfig - where to find libffi and which ABI to prepare calls for
type LibFFIConfig struct {
	// Paths replace the built-in libffi locations when set.
	Paths []string `yaml:"paths" json:"paths,omitempty" validate:"dive,required"`
	// ABI is a libffi ffi_abi value; 0 picks the architecture default.
	ABI int `yaml:"abi" json:"abi,omitempty" validate:"gte=0"`
}

// Declaration is one manifest entry. Types are names (FFI_INT, int) or ids.
type Declaration struct {
	Library string   `yaml:"library" json:"library" validate:"required"`
	Symbol  string   `yaml:"symbol" json:"symbol" validate:"required"`
	Returns string   `yaml:"returns" json:"returns,omitempty" validate:"omitempty,ffitype"`
	Args    []string `yaml:"args" json:"args,omitempty" validate:"dive,ffitype"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ffitype", func(fl validator.FieldLevel) bool {
		_, err := TypeByName(fl.Field().String())
		return err == nil
	})
	return v
}

// Signature resolves the return type (void when empty) and argument types.
func (d Declaration) Signature() (ret TypeID, args []TypeID, err error) {
	ret = Void
	if d.Returns != "" {
		if ret, err = TypeByName(d.Returns); err != nil {
			return 0, nil, err
		}
	}
	args = make([]TypeID, len(d.Args))
	for i, a := range d.Args {
		if args[i], err = TypeByName(a); err != nil {
			return 0, nil, err
		}
	}
	return ret, args, nil
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, wrapError(InvalidArgument, "config", err, "cannot parse configuration")
	}
	if err := validate.Struct(&c); err != nil {
		return nil, wrapError(InvalidArgument, "config", err, "invalid configuration")
	}
	return &c, nil
}

// LoadConfig - reads and validates the YAML configuration at path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(NotFound, "config", err, "cannot read %s", path)
	}
	return ParseConfig(data)
}

// Options maps the configuration onto handler options.
func (c *Config) Options(logger *slog.Logger) Options {
	return Options{
		LibFFIPaths: c.LibFFI.Paths,
		ABI:         c.LibFFI.ABI,
		Logger:      logger,
	}
}

// ConfigSchema returns the JSON schema of the configuration file.
func ConfigSchema() ([]byte, error) {
	r := jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&Config{})
	return json.MarshalIndent(s, "", "  ")
}

// DeclareManifest declares every entry in order. The first failure stops
// the run; the ids declared so far are returned with the error.
func (h *Handler) DeclareManifest(entries []Declaration) ([]FunctionID, error) {
	ids := make([]FunctionID, 0, len(entries))
	for _, e := range entries {
		ret, args, err := e.Signature()
		if err != nil {
			return ids, h.fail("DeclareManifest", err)
		}
		id, err := h.Declare(e.Library, e.Symbol, append([]TypeID{ret}, args...)...)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
