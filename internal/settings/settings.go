// Package settings holds the export engine's configuration surface. Settings
// live in two JSON text blobs stored next to the scene snapshot: the engine
// options and the interchange exporter options. Each has a "_previous"
// shadow used to detect configuration changes between cycles.
package settings

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"autoexport/internal/layout"
	"autoexport/pkg/domain"
)

const (
	// EngineBlob stores Engine.
	EngineBlob = ".gltf_auto_export_settings"
	// ExporterBlob stores Exporter.
	ExporterBlob = ".blenvy_gltf_settings"
	// PreviousSuffix names the shadow copy of a blob from the last cycle.
	PreviousSuffix = "_previous"
)

// Export formats understood by the exporter.
const (
	FormatGLB          = "GLB"
	FormatGLTFSeparate = "GLTF_SEPARATE"
	FormatGLTFEmbedded = "GLTF_EMBEDDED"
)

// Engine is the engine configuration. Env tags let the CLI override stored
// values with AUTOEXPORT_* variables.
type Engine struct {
	AutoExport             bool               `json:"auto_export" env:"AUTOEXPORT_AUTO_EXPORT"`
	ChangeDetection        bool               `json:"change_detection" env:"AUTOEXPORT_CHANGE_DETECTION"`
	ExportSceneSettings    bool               `json:"export_scene_settings" env:"AUTOEXPORT_EXPORT_SCENE_SETTINGS"`
	ExportBlueprints       bool               `json:"export_blueprints" env:"AUTOEXPORT_EXPORT_BLUEPRINTS"`
	ExportMarkedAssets     bool               `json:"export_marked_assets" env:"AUTOEXPORT_EXPORT_MARKED_ASSETS"`
	ExportMaterialsLibrary bool               `json:"export_materials_library" env:"AUTOEXPORT_EXPORT_MATERIALS_LIBRARY"`
	CombineMode            domain.CombineMode `json:"collection_instances_combine_mode" env:"AUTOEXPORT_COMBINE_MODE"`

	ProjectRootPath string `json:"project_root_path" env:"AUTOEXPORT_PROJECT_ROOT_PATH"`
	AssetsPath      string `json:"assets_path" env:"AUTOEXPORT_ASSETS_PATH"`
	BlueprintsPath  string `json:"blueprints_path" env:"AUTOEXPORT_BLUEPRINTS_PATH"`
	LevelsPath      string `json:"levels_path" env:"AUTOEXPORT_LEVELS_PATH"`
	MaterialsPath   string `json:"materials_path" env:"AUTOEXPORT_MATERIALS_PATH"`

	MainSceneNames    []string `json:"main_scene_names" env:"AUTOEXPORT_MAIN_SCENES"`
	LibrarySceneNames []string `json:"library_scene_names" env:"AUTOEXPORT_LIBRARY_SCENES"`
}

// Exporter is the interchange exporter configuration.
type Exporter struct {
	ExportFormat string `json:"export_format" env:"AUTOEXPORT_EXPORT_FORMAT"`
}

// Settings bundles both blobs.
type Settings struct {
	Engine   Engine
	Exporter Exporter
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() Engine {
	return Engine{
		AutoExport:       true,
		ChangeDetection:  true,
		ExportBlueprints: true,
		CombineMode:      domain.CombineEmbed,
		ProjectRootPath:  ".",
		AssetsPath:       "assets",
		BlueprintsPath:   "blueprints",
		LevelsPath:       "levels",
		MaterialsPath:    "materials",
	}
}

// DefaultExporter returns the exporter defaults.
func DefaultExporter() Exporter {
	return Exporter{ExportFormat: FormatGLB}
}

// Defaults returns both default blobs.
func Defaults() Settings {
	return Settings{Engine: DefaultEngine(), Exporter: DefaultExporter()}
}

// Validate rejects values the engine cannot act on.
func (s Settings) Validate() error {
	switch s.Engine.CombineMode {
	case domain.CombineEmbed, domain.CombineSplit:
	default:
		return fmt.Errorf("collection_instances_combine_mode must be %s or %s, got %q",
			domain.CombineEmbed, domain.CombineSplit, s.Engine.CombineMode)
	}
	switch s.Exporter.ExportFormat {
	case FormatGLB, FormatGLTFSeparate, FormatGLTFEmbedded:
	default:
		return fmt.Errorf("unknown export_format %q", s.Exporter.ExportFormat)
	}
	return nil
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	out := s
	out.Engine.MainSceneNames = append([]string(nil), s.Engine.MainSceneNames...)
	out.Engine.LibrarySceneNames = append([]string(nil), s.Engine.LibrarySceneNames...)
	return out
}

// LayoutOptions returns the path options for layout.Resolve.
func (e Engine) LayoutOptions() layout.Options {
	return layout.Options{
		ProjectRoot: e.ProjectRootPath,
		Assets:      e.AssetsPath,
		Blueprints:  e.BlueprintsPath,
		Levels:      e.LevelsPath,
		Materials:   e.MaterialsPath,
	}
}

// ApplyEnv overlays AUTOEXPORT_* variables onto s. Unset variables keep the
// stored values.
func ApplyEnv(s *Settings) error {
	if err := env.Parse(&s.Engine); err != nil {
		return fmt.Errorf("parse engine env: %w", err)
	}
	if err := env.Parse(&s.Exporter); err != nil {
		return fmt.Errorf("parse exporter env: %w", err)
	}
	return nil
}
