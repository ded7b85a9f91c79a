package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"correction-workflow/internal/domain"
)

type roleMappingFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoleMapping reads a YAML file of the form
//
//	roles:
//	  Head of Department: [HOD, Department Head]
//
// An empty path yields domain.DefaultRoleMapping.
func LoadRoleMapping(path string) (domain.RoleMapping, error) {
	if strings.TrimSpace(path) == "" {
		return domain.DefaultRoleMapping(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role mapping: %w", err)
	}
	return ParseRoleMapping(data)
}

func ParseRoleMapping(data []byte) (domain.RoleMapping, error) {
	var file roleMappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse role mapping: %w", err)
	}
	if len(file.Roles) == 0 {
		return nil, fmt.Errorf("role mapping has no roles")
	}

	mapping := make(domain.RoleMapping, len(file.Roles))
	for role, spellings := range file.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("role mapping has an empty workflow role")
		}
		names := make([]string, 0, len(spellings))
		for _, s := range spellings {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
		}
		mapping[role] = names
	}
	return mapping, nil
}
