package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dynexec/internal/spawn"
)

// SpawnFile is the YAML description of the spawns a driver invocation runs.
type SpawnFile struct {
	Spawns []SpawnSpec `yaml:"spawns"`
}

// SpawnSpec is one spawn entry in a spawn file.
type SpawnSpec struct {
	Name     string            `yaml:"name"`
	Mnemonic string            `yaml:"mnemonic"`
	Argv     []string          `yaml:"argv"`
	Env      map[string]string `yaml:"env"`
	Inputs   []string          `yaml:"inputs"`
	Outputs  []string          `yaml:"outputs"`
	ExecInfo map[string]string `yaml:"exec_info"`
}

// LoadSpawnFile reads and validates a spawn file.
func LoadSpawnFile(path string) (*SpawnFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spawn file: %w", err)
	}

	var file SpawnFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing spawn file %s: %w", path, err)
	}
	if len(file.Spawns) == 0 {
		return nil, fmt.Errorf("spawn file %s declares no spawns", path)
	}

	seen := make(map[string]bool, len(file.Spawns))
	for i := range file.Spawns {
		spec := &file.Spawns[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("spawn %d in %s has no name", i, path)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate spawn name %q in %s", spec.Name, path)
		}
		seen[spec.Name] = true
		if len(spec.Argv) == 0 {
			return nil, fmt.Errorf("spawn %q in %s has no argv", spec.Name, path)
		}
		if spec.Mnemonic == "" {
			spec.Mnemonic = "Run"
		}
	}
	return &file, nil
}

// ToSpawn converts the spec into the immutable engine model.
func (s SpawnSpec) ToSpawn() *spawn.Spawn {
	return spawn.New(s.Mnemonic, s.Argv, s.Env, s.Inputs, s.Outputs, s.ExecInfo, s.Name)
}
