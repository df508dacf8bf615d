package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"autoexport/internal/observability"
	"autoexport/pkg/domain"
)

// BlobStore is the text-blob persistence the settings live in.
type BlobStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Put(ctx context.Context, name, payload string) error
	Delete(ctx context.Context, name string) error
}

// Options configures a Manager.
type Options struct {
	Logger observability.Logger
	// Env applies AUTOEXPORT_* overrides after loading.
	Env bool
}

// Manager loads, saves and compares the settings blobs.
type Manager struct {
	store BlobStore
	log   observability.Logger
	env   bool
}

// NewManager binds a Manager to a blob store.
func NewManager(store BlobStore, opts Options) *Manager {
	return &Manager{store: store, log: observability.OrNop(opts.Logger), env: opts.Env}
}

// Loaded is the result of Load. The embedded Settings carry the
// environment overrides; Stored does not and is what Save should write.
type Loaded struct {
	Settings
	Stored Settings
	// Recovered lists the blobs discarded because they could not be parsed.
	Recovered []string
}

// Load reads both blobs over the defaults. A blob that fails to parse is
// deleted and the defaults are used in its place; the caller should treat
// the configuration as changed.
func (m *Manager) Load(ctx context.Context) (Loaded, error) {
	out := Loaded{Settings: Defaults()}
	for _, blob := range []struct {
		name   string
		target any
	}{
		{EngineBlob, &out.Engine},
		{ExporterBlob, &out.Exporter},
	} {
		raw, ok, err := m.store.Get(ctx, blob.name)
		if err != nil {
			return Loaded{}, fmt.Errorf("load %s: %w", blob.name, err)
		}
		if !ok {
			continue
		}
		if err := decodeOver(raw, blob.target); err != nil {
			corrupt := domain.CorruptConfigurationError{Blob: blob.name, Err: err}
			m.log.Warn("removed corrupted export settings", "blob", blob.name, "error", corrupt)
			if err := m.store.Delete(ctx, blob.name); err != nil {
				return Loaded{}, fmt.Errorf("discard %s: %w", blob.name, err)
			}
			out.Recovered = append(out.Recovered, blob.name)
		}
	}
	if out.Engine.CombineMode == domain.CombineUnset {
		out.Engine.CombineMode = domain.CombineEmbed
	}
	out.Stored = out.Settings.Clone()
	if m.env {
		if err := ApplyEnv(&out.Settings); err != nil {
			return Loaded{}, err
		}
	}
	if err := out.Validate(); err != nil {
		return Loaded{}, err
	}
	return out, nil
}

// decodeOver unmarshals raw on top of the values already in target, after
// checking it is an object. A partially decoded engine blob is reset.
func decodeOver(raw string, target any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("settings blob is not an object")
	}
	before := reflect.ValueOf(target).Elem().Interface()
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		reflect.ValueOf(target).Elem().Set(reflect.ValueOf(before))
		return err
	}
	return nil
}

// Save merges s into the stored blobs: keys already present but unknown to
// this version are kept.
func (m *Manager) Save(ctx context.Context, s Settings) error {
	if err := m.merge(ctx, EngineBlob, s.Engine); err != nil {
		return err
	}
	return m.merge(ctx, ExporterBlob, s.Exporter)
}

func (m *Manager) merge(ctx context.Context, name string, v any) error {
	current := map[string]any{}
	raw, ok, err := m.store.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &current); err != nil || current == nil {
			current = map[string]any{}
		}
	}
	fields, err := toMap(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	for k, val := range fields {
		current[k] = val
	}
	payload, err := encode(current)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := m.store.Put(ctx, name, payload); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Changed compares the current blobs with their previous-cycle shadows and
// then rewrites the shadows with the current values. A missing engine
// shadow counts as a change; a missing exporter shadow compares as empty.
func (m *Manager) Changed(ctx context.Context) (bool, error) {
	engineChanged, err := m.compare(ctx, EngineBlob, true)
	if err != nil {
		return false, err
	}
	exporterChanged, err := m.compare(ctx, ExporterBlob, false)
	if err != nil {
		return false, err
	}
	return engineChanged || exporterChanged, nil
}

func (m *Manager) compare(ctx context.Context, name string, missingIsChange bool) (bool, error) {
	current, curOK, err := m.store.Get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if !curOK {
		current = "{}"
	}
	shadow := name + PreviousSuffix
	previous, prevOK, err := m.store.Get(ctx, shadow)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", shadow, err)
	}
	var changed bool
	switch {
	case !prevOK && missingIsChange:
		changed = true
	case !prevOK:
		changed = !equalJSON("{}", current)
	default:
		changed = !equalJSON(previous, current)
	}
	if curOK {
		if err := m.store.Put(ctx, shadow, current); err != nil {
			return false, fmt.Errorf("save %s: %w", shadow, err)
		}
	}
	return changed, nil
}

// equalJSON compares two JSON objects key by key, independent of key order
// and formatting. Unparsable input never compares equal.
func equalJSON(a, b string) bool {
	var left, right map[string]any
	if err := json.Unmarshal([]byte(a), &left); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &right); err != nil {
		return false
	}
	if left == nil {
		left = map[string]any{}
	}
	if right == nil {
		right = map[string]any{}
	}
	return reflect.DeepEqual(left, right)
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(v map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
