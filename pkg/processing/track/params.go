package track

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Params holds the engine tuning knobs. The defaults are the tested
// configuration, overrides come from a yaml file (see LoadParams).
type Params struct {
	SmoothingWindow    int     `yaml:"smoothingWindow"    validate:"gte=3"`
	MinCoordinates     int     `yaml:"minCoordinates"     validate:"gte=2"`
	SectionDivisor     int     `yaml:"sectionDivisor"     validate:"gte=1"`
	StraightMax        float64 `yaml:"straightMax"        validate:"gt=0"`
	SlightCornerMax    float64 `yaml:"slightCornerMax"    validate:"gt=0"`
	CurvatureThreshold float64 `yaml:"curvatureThreshold" validate:"gt=0"`
	ClusterRadius      float64 `yaml:"clusterRadius"      validate:"gt=0"`
	StalenessMs        int64   `yaml:"stalenessMs"        validate:"gt=0"`
}

func DefaultParams() Params {
	return Params{
		SmoothingWindow:    5,
		MinCoordinates:     10,
		SectionDivisor:     20,
		StraightMax:        0.05,
		SlightCornerMax:    0.2,
		CurvatureThreshold: 0.1,
		ClusterRadius:      50,
		StalenessMs:        10000,
	}
}

func (p Params) Validate() error {
	validate := validator.New()
	if err := validate.Struct(&p); err != nil {
		return err
	}
	if p.SmoothingWindow%2 == 0 {
		return fmt.Errorf("smoothingWindow must be odd, got %d", p.SmoothingWindow)
	}
	if p.SlightCornerMax <= p.StraightMax {
		return fmt.Errorf("slightCornerMax (%f) must be greater than straightMax (%f)",
			p.SlightCornerMax, p.StraightMax)
	}
	return nil
}

// LoadParams reads overrides from a yaml file on top of the defaults.
func LoadParams(path string) (Params, error) {
	ret := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return ret, fmt.Errorf("could not read params file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return ret, fmt.Errorf("could not parse params file %s: %w", path, err)
	}
	if err := ret.Validate(); err != nil {
		return ret, fmt.Errorf("invalid params in %s: %w", path, err)
	}
	return ret, nil
}
