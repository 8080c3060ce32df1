package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/riftgate/server/internal/presence"
)

// yamlSeedFile is the top-level YAML structure for account seed files.
type yamlSeedFile struct {
	Accounts  []yamlAccount  `yaml:"accounts"`
	Relations []yamlRelation `yaml:"relations"`
}

// yamlAccount is the YAML representation of an account record.
type yamlAccount struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Banned      bool   `yaml:"banned"`
}

// yamlRelation is the YAML representation of a relation edge.
type yamlRelation struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Status string `yaml:"status"`
	Mutual bool   `yaml:"mutual"`
}

// LoadFromFile reads an account seed YAML file into a fresh store.
//
// Precondition: path must point to a valid YAML seed file.
// Postcondition: Returns a populated store or a non-nil error.
func LoadFromFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates a seed from YAML bytes.
func LoadFromBytes(data []byte) (*Memory, error) {
	var file yamlSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}

	m := NewMemory()
	ids := make(map[string]bool, len(file.Accounts))
	for i, a := range file.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d: id is required", i)
		}
		if a.DisplayName == "" {
			return nil, fmt.Errorf("account %s: display_name is required", a.ID)
		}
		if ids[a.ID] {
			return nil, fmt.Errorf("account %s: duplicate id", a.ID)
		}
		ids[a.ID] = true
		m.PutAccount(a.ID, presence.Account{DisplayName: a.DisplayName, Banned: a.Banned})
	}

	for i, r := range file.Relations {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("relation %d: from and to are required", i)
		}
		status := RelationStatus(r.Status)
		switch status {
		case RelationAccepted, RelationPending:
		default:
			return nil, fmt.Errorf("relation %s -> %s: unknown status %q", r.From, r.To, r.Status)
		}
		if r.Mutual {
			m.SetMutualRelation(r.From, r.To, status)
		} else {
			m.SetRelation(r.From, r.To, status)
		}
	}

	return m, nil
}
