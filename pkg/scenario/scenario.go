package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default tuning applied when a scenario file leaves a knob unset.
const (
	DefaultAttackSuccess = 0.6
	DefaultThreatDamage  = 3
	DefaultMaxHP         = 10
	DefaultAC            = 11
)

// Scenario is the fixed premise and tuning for a horror run. Scenarios are
// authored as YAML files under the data directory and loaded fresh per use.
type Scenario struct {
	Name           string       `yaml:"name" json:"name"`
	Premise        string       `yaml:"premise" json:"premise"`
	OpeningContext string       `yaml:"opening_context" json:"opening_context"`
	Survivor       SurvivorSpec `yaml:"survivor" json:"survivor"`

	// Combat tuning.
	AttackSuccess float64 `yaml:"attack_success" json:"attack_success"`
	ThreatDamage  int     `yaml:"threat_damage" json:"threat_damage"`

	// Optional overrides for the keyword classifier.
	ThreatKeywords []string `yaml:"threat_keywords,omitempty" json:"threat_keywords,omitempty"`
	RiskyKeywords  []string `yaml:"risky_keywords,omitempty" json:"risky_keywords,omitempty"`
}

// Load reads and validates a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the fields a scenario cannot run without.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Premise == "" {
		return fmt.Errorf("scenario premise is required")
	}
	if s.AttackSuccess < 0 || s.AttackSuccess > 1 {
		return fmt.Errorf("attack_success must be in [0,1], got %v", s.AttackSuccess)
	}
	return nil
}

func (s *Scenario) applyDefaults() {
	if s.OpeningContext == "" {
		s.OpeningContext = s.Premise
	}
	if s.AttackSuccess == 0 {
		s.AttackSuccess = DefaultAttackSuccess
	}
	if s.ThreatDamage <= 0 {
		s.ThreatDamage = DefaultThreatDamage
	}
	s.Survivor.applyDefaults()
}

// Default returns the built-in scenario used when no scenario file is
// specified at session creation.
func Default() *Scenario {
	s := &Scenario{
		Name: "Static Signal",
		Premise: "An isolated desert research outpost has gone silent. " +
			"The survivor arrived at dusk to find the gates open, the generators " +
			"humming, and no one alive. Something else is here.",
		OpeningContext: "A desert outpost at dusk. The gates hang open and " +
			"a generator hums somewhere behind the prefab sheds.",
		Survivor: SurvivorSpec{
			Name:  "The Survivor",
			MaxHP: DefaultMaxHP,
			AC:    DefaultAC,
		},
	}
	s.applyDefaults()
	return s
}
