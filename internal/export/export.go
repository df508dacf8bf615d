// Package export runs one export cycle: it rebuilds the blueprint graph,
// selects the targets that need writing and drives an Exporter over them in
// a fixed order, guaranteeing the host state is cleaned up afterwards.
package export

import (
	"context"
	"errors"

	"autoexport/internal/blueprint"
	"autoexport/internal/layout"
	"autoexport/internal/observability"
	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// ErrExportInProgress is returned by Run while another cycle is running.
var ErrExportInProgress = errors.New("export already in progress")

// Target kinds.
const (
	KindLevel     = "level"
	KindBlueprint = "blueprint"
	KindMaterials = "materials"
)

// Host is the authoring application as seen by the orchestrator: the
// inventory plus the mutable state it saves, annotates and restores.
// *scene.Project implements it.
type Host interface {
	scene.Inventory
	blueprint.CollectionAnnotator
	ActiveScene() string
	SetActiveScene(name string) error
	Selection() []string
	Select(names []string)
	SetSceneProperty(scene, key, value string) error
	DeleteSceneProperty(scene, key string)
	SetObjectProperty(object, key, value string) error
	DeleteObjectProperty(object, key string)
}

var _ Host = (*scene.Project)(nil)

// Target identifies one output file.
type Target struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	// Key is the blob store key; Path the absolute file path.
	Key  string `json:"key"`
	Path string `json:"path"`
}

// Job carries everything an Exporter needs besides the item itself.
// Graph is nil when levels are exported without blueprint information.
type Job struct {
	Target         Target
	Inventory      scene.Inventory
	Graph          *blueprint.Graph
	Layout         layout.Layout
	Format         string
	DefaultCombine domain.CombineMode
}

// Exporter writes interchange files.
type Exporter interface {
	ExportLevel(ctx context.Context, job Job, level *scene.Scene) error
	ExportBlueprint(ctx context.Context, job Job, bp *domain.Blueprint) error
	ExportMaterials(ctx context.Context, job Job, materials []string) error
}

// SceneAnnotator adds and removes per-level scene settings around a cycle.
type SceneAnnotator interface {
	Upsert(ctx context.Context, host Host, levels []*scene.Scene) error
	Remove(ctx context.Context, host Host, levels []*scene.Scene)
}

// Notifier surfaces a single user-visible message per failed cycle.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, message string) { f(ctx, message) }

// LogNotifier reports failures through the logger.
type LogNotifier struct {
	Logger observability.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, message string) {
	observability.OrNop(n.Logger).Error(message)
}

// ExportCounter counts written files by kind. observability.PrometheusRecorder
// implements it.
type ExportCounter interface {
	CountExport(kind string, success bool)
}
