// Package actions turns a transcript into whiteboard edit instructions.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CreateNode = "create_node"
	DeleteNode = "delete_node"
	RenameNode = "rename_node"
	CreateEdge = "create_edge"
	DeleteEdge = "delete_edge"
	AddLabel   = "add_label"
	Suggestion = "suggestion"
)

var Types = []string{CreateNode, DeleteNode, RenameNode, CreateEdge, DeleteEdge, AddLabel, Suggestion}

var NodeTypes = []string{"service", "database", "gateway", "queue", "user", "generic"}

var ErrMalformed = errors.New("malformed action plan")

type Action struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	NodeType string `json:"node_type,omitempty"`
}

type Plan struct {
	Actions []Action `json:"actions"`
}

type Generator interface {
	Generate(ctx context.Context, transcript string) (*Plan, error)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (a Action) Validate() error {
	if !contains(Types, a.Type) {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.NodeType != "" && !contains(NodeTypes, a.NodeType) {
		return fmt.Errorf("%s: unknown node_type %q", a.Type, a.NodeType)
	}

	var missing string
	switch a.Type {
	case CreateNode:
		switch {
		case a.ID == "":
			missing = "id"
		case a.NodeType == "":
			missing = "node_type"
		}
	case DeleteNode:
		if a.ID == "" {
			missing = "id"
		}
	case RenameNode, AddLabel:
		switch {
		case a.ID == "":
			missing = "id"
		case a.Text == "":
			missing = "text"
		}
	case CreateEdge, DeleteEdge:
		switch {
		case a.From == "":
			missing = "from"
		case a.To == "":
			missing = "to"
		}
	case Suggestion:
		if a.Text == "" {
			missing = "text"
		}
	}
	if missing != "" {
		return fmt.Errorf("%s: missing %s", a.Type, missing)
	}
	return nil
}

// Parse decodes and validates a model reply. Anything that is not a JSON
// object with a valid "actions" array is ErrMalformed.
func Parse(data []byte) (*Plan, error) {
	var raw struct {
		Actions *[]Action `json:"actions"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if raw.Actions == nil {
		return nil, fmt.Errorf("%w: no actions field", ErrMalformed)
	}
	for i, a := range *raw.Actions {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: action %d: %v", ErrMalformed, i, err)
		}
	}
	return &Plan{Actions: *raw.Actions}, nil
}
