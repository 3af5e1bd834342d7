package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/sensor-profile-v1.json
var sensorProfileSchemaJSON string

// ErrInvalidProfile marks profiles that pass the schema but cannot build a
// mode table.
var ErrInvalidProfile = errors.New("invalid sensor profile")

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("sensor-profile-v1.json",
		strings.NewReader(sensorProfileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("sensor-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateProfile checks a JSON encoded profile against the schema.
func (v *Validator) ValidateProfile(data []byte) error {
	var profile interface{}
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return v.validate(profile)
}

func (v *Validator) ValidateProfileDefinition(profile *types.SensorProfileDefinition) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := v.ValidateProfile(data); err != nil {
		return err
	}
	return v.ValidateModes(profile)
}

// ValidateModes checks what the schema cannot express: mode names are
// unique within a profile.
func (v *Validator) ValidateModes(profile *types.SensorProfileDefinition) error {
	seen := make(map[string]int, len(profile.Modes))
	for i, mode := range profile.Modes {
		if first, ok := seen[mode.Name]; ok {
			return fmt.Errorf("%w: modes %d and %d are both named %s",
				ErrInvalidProfile, first, i, mode.Name)
		}
		seen[mode.Name] = i
	}
	return nil
}

func (v *Validator) validate(doc interface{}) error {
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
