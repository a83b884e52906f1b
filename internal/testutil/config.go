package testutil

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/lepinkainen/stacks/internal/config"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	UpdateCovers  bool
	EgressEnabled bool
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		UpdateCovers:  config.UpdateCovers,
		EgressEnabled: config.EgressEnabled,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.UpdateCovers = state.UpdateCovers
	config.EgressEnabled = state.EgressEnabled
}

// ResetConfig saves the current config state and schedules restoration
// when the test completes. It also resets viper.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}
