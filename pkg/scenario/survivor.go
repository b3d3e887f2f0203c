package scenario

import (
	"fmt"

	"github.com/jwebster45206/d20"
)

// SurvivorSpec is the serializable character sheet for the player. It is
// built into a d20.Actor at session start; the world state persists only
// the derived vitals.
type SurvivorSpec struct {
	Name            string         `yaml:"name" json:"name"`
	MaxHP           int            `yaml:"max_hp" json:"max_hp"`
	AC              int            `yaml:"ac" json:"ac"`
	Attributes      map[string]int `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	CombatModifiers map[string]int `yaml:"combat_modifiers,omitempty" json:"combat_modifiers,omitempty"`
}

func (sp *SurvivorSpec) applyDefaults() {
	if sp.Name == "" {
		sp.Name = "The Survivor"
	}
	if sp.MaxHP <= 0 {
		sp.MaxHP = DefaultMaxHP
	}
	if sp.AC <= 0 {
		sp.AC = DefaultAC
	}
}

// BuildActor constructs the runtime d20 actor from the spec.
func (sp *SurvivorSpec) BuildActor() (*d20.Actor, error) {
	sp.applyDefaults()

	actor, err := d20.NewActor(sp.Name).
		WithHP(sp.MaxHP).
		WithAC(sp.AC).
		WithAttributes(sp.Attributes).
		WithCombatModifiers(sp.CombatModifiers).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build survivor actor: %w", err)
	}
	return actor, nil
}

// BuildActorAt constructs the actor and sets its current HP, for resuming a
// session where the survivor has already taken damage.
func (sp *SurvivorSpec) BuildActorAt(hp int) (*d20.Actor, error) {
	actor, err := sp.BuildActor()
	if err != nil {
		return nil, err
	}
	if hp > 0 && hp != sp.MaxHP {
		if err := actor.SetHP(hp); err != nil {
			return nil, fmt.Errorf("failed to set survivor HP: %w", err)
		}
	}
	return actor, nil
}
