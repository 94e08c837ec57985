package assistant

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/formfill/internal/tools"
	"gopkg.in/yaml.v3"
)

// Role selects which assistant an endpoint talks to.
type Role string

const (
	// RoleForm fills forms and is offered the fill_forms tool.
	RoleForm Role = "form"
	// RoleHelper discusses answers with the user.
	RoleHelper Role = "helper"
)

//go:embed assistants.yaml
var defaultDefinitions []byte

var errUnknownRole = errors.New("unknown assistant role")

// Definition is the local description of a remote assistant.
type Definition struct {
	Name            string   `yaml:"name" json:"name"`
	Role            Role     `yaml:"role" json:"role"`
	Model           string   `yaml:"model" json:"model"`
	Instructions    string   `yaml:"instructions" json:"instructions"`
	RunInstructions string   `yaml:"run_instructions,omitempty" json:"run_instructions,omitempty"`
	FileSearch      bool     `yaml:"file_search,omitempty" json:"file_search,omitempty"`
	Tools           []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Catalog is the set of assistants the service runs with.
type Catalog struct {
	Assistants []Definition `yaml:"assistants"`
}

// LoadCatalog reads definitions from path, or the embedded defaults when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultDefinitions
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read assistants file: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse assistants: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate requires one form and one helper assistant with names and models.
func (c *Catalog) Validate() error {
	seen := make(map[Role]bool)
	for i, def := range c.Assistants {
		if def.Name == "" || def.Model == "" {
			return fmt.Errorf("assistant %d: name and model are required", i)
		}
		if def.Role != RoleForm && def.Role != RoleHelper {
			return fmt.Errorf("assistant %q: %w %q", def.Name, errUnknownRole, def.Role)
		}
		if seen[def.Role] {
			return fmt.Errorf("assistant %q: duplicate role %q", def.Name, def.Role)
		}
		seen[def.Role] = true
	}
	for _, role := range []Role{RoleForm, RoleHelper} {
		if !seen[role] {
			return fmt.Errorf("missing assistant with role %q", role)
		}
	}
	return nil
}

// ByRole returns the definition for a role.
func (c *Catalog) ByRole(role Role) (Definition, error) {
	for _, def := range c.Assistants {
		if def.Role == role {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w %q", errUnknownRole, role)
}

// ToolDefinitions selects the tools a definition names from the dispatcher's set.
func (d Definition) ToolDefinitions(available []tools.Definition) ([]tools.Definition, error) {
	byName := make(map[string]tools.Definition, len(available))
	for _, td := range available {
		byName[td.Name] = td
	}
	out := make([]tools.Definition, 0, len(d.Tools))
	for _, name := range d.Tools {
		td, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("assistant %q: tool %q is not registered", d.Name, name)
		}
		out = append(out, td)
	}
	return out, nil
}

// Fingerprint hashes everything sent to the remote service on creation.
// RunInstructions are per-run and excluded.
func (d Definition) Fingerprint(toolDefs []tools.Definition) string {
	payload := struct {
		Name         string             `json:"name"`
		Model        string             `json:"model"`
		Instructions string             `json:"instructions"`
		FileSearch   bool               `json:"file_search"`
		Tools        []tools.Definition `json:"tools"`
	}{d.Name, d.Model, d.Instructions, d.FileSearch, toolDefs}
	raw, _ := json.Marshal(payload) // map keys are sorted by encoding/json
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
