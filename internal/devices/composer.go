package devices

import (
	"fmt"
	"math"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"go.uber.org/zap"
)

// Composer turns profile mode definitions into msensor mode tables.
type Composer struct {
	logger *zap.Logger
}

func NewComposer(logger *zap.Logger) *Composer {
	return &Composer{logger: logger}
}

// ComposeModes builds a fresh mode table for one sensor instance. Every call
// returns new raw buffers, so sensors sharing a profile never share samples.
func (c *Composer) ComposeModes(profile *types.SensorProfileDefinition) ([]msensor.Mode, error) {
	modes := make([]msensor.Mode, 0, len(profile.Modes))

	for i, def := range profile.Modes {
		format, err := msensor.ParseFormat(string(def.Format))
		if err != nil {
			return nil, fmt.Errorf("mode %d (%s): %w", i, def.Name, err)
		}

		modes = append(modes, msensor.Mode{
			Name:     def.Name,
			Decimals: def.Decimals,
			DataSets: def.DataSets,
			Format:   format,
			RawMin:   math.Float32bits(def.RawMin),
			RawMax:   math.Float32bits(def.RawMax),
			PctMin:   math.Float32bits(def.PctMin),
			PctMax:   math.Float32bits(def.PctMax),
			SIMin:    math.Float32bits(def.SIMin),
			SIMax:    math.Float32bits(def.SIMax),
			Units:    def.Units,
		})
	}

	c.logger.Debug("Mode table composed",
		zap.String("profile", profile.SensorProfile.ID),
		zap.Int("modes", len(modes)))

	return modes, nil
}
