package scene

import "fmt"

// ActiveScene returns the scene the host currently shows.
func (p *Project) ActiveScene() string { return p.activeScene }

// SetActiveScene switches the active scene.
func (p *Project) SetActiveScene(name string) error {
	if _, ok := p.sceneByName[name]; !ok {
		return fmt.Errorf("scene %q not found", name)
	}
	p.activeScene = name
	return nil
}

// Selection returns a copy of the selected object names.
func (p *Project) Selection() []string { return append([]string(nil), p.selection...) }

// Select replaces the selection. Unknown names are ignored.
func (p *Project) Select(names []string) {
	p.selection = p.selection[:0]
	for _, n := range names {
		if _, ok := p.objectByName[n]; ok {
			p.selection = append(p.selection, n)
		}
	}
}

// SetCollectionProperty writes a custom property on a collection.
func (p *Project) SetCollectionProperty(collection, key, value string) error {
	c, ok := p.collectionByName[collection]
	if !ok {
		return fmt.Errorf("collection %q not found", collection)
	}
	c.Properties = setProp(c.Properties, key, value)
	return nil
}

// SetSceneProperty writes a custom property on a scene.
func (p *Project) SetSceneProperty(scene, key, value string) error {
	s, ok := p.sceneByName[scene]
	if !ok {
		return fmt.Errorf("scene %q not found", scene)
	}
	s.Properties = setProp(s.Properties, key, value)
	return nil
}

// DeleteSceneProperty removes a custom property from a scene if present.
func (p *Project) DeleteSceneProperty(scene, key string) {
	if s, ok := p.sceneByName[scene]; ok {
		delete(s.Properties, key)
	}
}

// SetObjectProperty writes a custom property on an object.
func (p *Project) SetObjectProperty(object, key, value string) error {
	o, ok := p.objectByName[object]
	if !ok {
		return fmt.Errorf("object %q not found", object)
	}
	o.Properties = setProp(o.Properties, key, value)
	return nil
}

// DeleteObjectProperty removes a custom property from an object if present.
func (p *Project) DeleteObjectProperty(object, key string) {
	if o, ok := p.objectByName[object]; ok {
		delete(o.Properties, key)
	}
}

func setProp(props map[string]string, key, value string) map[string]string {
	if props == nil {
		props = make(map[string]string)
	}
	props[key] = value
	return props
}
