package model

import "time"

// StateDefinition is a single state in a workflow graph.
type StateDefinition struct {
	Name    string `yaml:"name"    json:"name"`
	Initial bool   `yaml:"initial" json:"initial,omitempty"`
	Final   bool   `yaml:"final"   json:"final,omitempty"`
}

// TransitionDefinition is a directed edge in a workflow graph, guarded by a
// role set. An empty role list is normalized to the wildcard at publish time.
type TransitionDefinition struct {
	From  string   `yaml:"from"  json:"from"`
	To    string   `yaml:"to"    json:"to"`
	Label string   `yaml:"label" json:"label,omitempty"`
	Roles []string `yaml:"roles" json:"roles,omitempty"`
}

// Guard returns the transition's role guard as a RoleSet. An empty declared
// role list means the wildcard.
func (t TransitionDefinition) Guard() RoleSet {
	if len(t.Roles) == 0 {
		return NewRoleSet(RoleWildcard)
	}
	return NewRoleSet(t.Roles...)
}

// WorkflowDefinition is a named graph of states and role-gated transitions.
// Once published it is immutable; changes require publishing a new definition,
// and existing instances keep referencing the one they were created against.
type WorkflowDefinition struct {
	ID          string                 `yaml:"id"          json:"id"`
	Name        string                 `yaml:"name"        json:"name"`
	Description string                 `yaml:"description" json:"description,omitempty"`
	States      []StateDefinition      `yaml:"states"      json:"states"`
	Transitions []TransitionDefinition `yaml:"transitions" json:"transitions"`
	OrgID       string                 `yaml:"-"           json:"org_id,omitempty"`
	PublishedAt time.Time              `yaml:"-"           json:"published_at,omitempty"`
}

// InitialState returns the name of the state flagged initial, or "" if the
// definition declares none. Validation guarantees exactly one on published
// definitions.
func (d WorkflowDefinition) InitialState() string {
	for _, s := range d.States {
		if s.Initial {
			return s.Name
		}
	}
	return ""
}

// IsFinal reports whether the named state is flagged final.
func (d WorkflowDefinition) IsFinal(state string) bool {
	for _, s := range d.States {
		if s.Name == state {
			return s.Final
		}
	}
	return false
}

// HasState reports whether the named state is declared by the definition.
func (d WorkflowDefinition) HasState(state string) bool {
	for _, s := range d.States {
		if s.Name == state {
			return true
		}
	}
	return false
}

// WorkflowInstance is the live state-machine cursor for one mission against
// one definition. CurrentState is mutated only by the instance machine;
// Version is the optimistic-lock column.
type WorkflowInstance struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definition_id"`
	MissionID    string    `json:"mission_id"`
	CurrentState string    `json:"current_state"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TransitionRecord is one immutable entry in an instance's transition history.
// Records form an append-only sequence ordered by commit; they are never
// updated or deleted.
type TransitionRecord struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	ActorID    string    `json:"actor_id"`
	Notes      string    `json:"notes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AvailableTransition is one legal next action for an instance, filtered to
// the requesting actor's roles.
type AvailableTransition struct {
	ToState string `json:"toState"`
	Label   string `json:"label,omitempty"`
}
