package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autoexport/internal/scene"
)

const (
	// SceneSettingsProperty holds the per-level settings written during a cycle.
	SceneSettingsProperty = "SceneSettings"
	worldPrefix           = "world."
)

// PropertyAnnotator copies a level's "world.*" properties (lighting,
// shadows, background) into a single SceneSettings property for the
// duration of a cycle, so level exports carry them.
type PropertyAnnotator struct{}

// Upsert implements SceneAnnotator.
func (PropertyAnnotator) Upsert(_ context.Context, host Host, levels []*scene.Scene) error {
	for _, s := range levels {
		settings := map[string]string{}
		for k, v := range s.Properties {
			if name, ok := strings.CutPrefix(k, worldPrefix); ok && name != "" {
				settings[name] = v
			}
		}
		raw, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode scene settings for %s: %w", s.Name, err)
		}
		if err := host.SetSceneProperty(s.Name, SceneSettingsProperty, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements SceneAnnotator.
func (PropertyAnnotator) Remove(_ context.Context, host Host, levels []*scene.Scene) {
	for _, s := range levels {
		host.DeleteSceneProperty(s.Name, SceneSettingsProperty)
	}
}
