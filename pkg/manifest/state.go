package manifest

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// State tracks which services have been deployed so start/stop/crontab
// operations know what is installed on the host. It is the only piece of
// orchestrator state persisted between invocations.
type State struct {
	Deployed map[string]bool `yaml:"deployed"`
}

// LoadState reads the state tracking file. A missing file simply means
// nothing has been deployed yet.
func LoadState(fsys afero.Fs, path string) (*State, error) {
	state := &State{Deployed: make(map[string]bool)}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Deployed == nil {
		state.Deployed = make(map[string]bool)
	}
	return state, nil
}

// SaveState writes the state tracking file.
func SaveState(fsys afero.Fs, path string, state *State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	return afero.WriteFile(fsys, path, data, 0644)
}
