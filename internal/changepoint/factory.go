package changepoint

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for an unrecognized detector or hazard name.
var ErrUnknownKind = errors.New("changepoint: unknown kind")

// Detector kinds.
const (
	KindBOCPD = "bocpd"
	KindCUSUM = "cusum"
)

// Hazard kinds.
const (
	HazardConstant  = "constant"
	HazardGeometric = "geometric"
	HazardPowerLaw  = "power_law"
)

// HazardConfig selects and parameterizes a Hazard.
type HazardConfig struct {
	Kind     string  `yaml:"kind"`
	Lambda   float64 `yaml:"lambda"`
	Initial  float64 `yaml:"initial"`
	Ratio    float64 `yaml:"ratio"`
	Floor    float64 `yaml:"floor"`
	Scale    float64 `yaml:"scale"`
	Exponent float64 `yaml:"exponent"`
}

// Settings describes how to build a Detector.
type Settings struct {
	Kind   string       `yaml:"kind"`
	BOCPD  BOCPDConfig  `yaml:"bocpd"`
	CUSUM  CUSUMConfig  `yaml:"cusum"`
	Hazard HazardConfig `yaml:"hazard"`
}

// DefaultSettings returns BOCPD with a constant hazard.
func DefaultSettings() Settings {
	return Settings{
		Kind:  KindBOCPD,
		BOCPD: DefaultBOCPDConfig(),
		CUSUM: DefaultCUSUMConfig(),
		Hazard: HazardConfig{
			Kind:     HazardConstant,
			Lambda:   100,
			Initial:  0.1,
			Ratio:    0.95,
			Floor:    0.005,
			Scale:    0.1,
			Exponent: 0.5,
		},
	}
}

// Build returns the configured Hazard.
func (h HazardConfig) Build() (Hazard, error) {
	switch h.Kind {
	case "", HazardConstant:
		return Constant{Lambda: h.Lambda}, nil
	case HazardGeometric:
		return Geometric{Initial: h.Initial, Ratio: h.Ratio, Floor: h.Floor}, nil
	case HazardPowerLaw:
		return PowerLaw{Scale: h.Scale, Exponent: h.Exponent}, nil
	}
	return nil, fmt.Errorf("hazard %q: %w", h.Kind, ErrUnknownKind)
}

// New builds a fresh Detector from s.
func (s Settings) New() (Detector, error) {
	switch s.Kind {
	case "", KindBOCPD:
		h, err := s.Hazard.Build()
		if err != nil {
			return nil, err
		}
		return NewBOCPD(s.BOCPD, h), nil
	case KindCUSUM:
		return NewCUSUM(s.CUSUM), nil
	}
	return nil, fmt.Errorf("detector %q: %w", s.Kind, ErrUnknownKind)
}
