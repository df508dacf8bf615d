package export

import (
	"fmt"

	"autoexport/internal/blueprint"
	"autoexport/internal/scene"
	"autoexport/pkg/domain"
)

// MaterialInfoProperty is the object property pointing at the materials library.
const MaterialInfoProperty = "MaterialInfo"

// libraryObjects returns the objects of every blueprint collection linked
// into a library scene, in blueprint name order.
func libraryObjects(inv scene.Inventory, g *blueprint.Graph, library []*scene.Scene) []*scene.Object {
	seen := domain.NewSet()
	var out []*scene.Object
	for _, name := range g.Names {
		coll, ok := inv.Collection(name)
		if !ok || !usedBy(inv, library, name) {
			continue
		}
		for _, obj := range inv.AllObjects(coll) {
			if seen.Has(obj.Name) {
				continue
			}
			seen.Add(obj.Name)
			out = append(out, obj)
		}
	}
	return out
}

func usedBy(inv scene.Inventory, scenes []*scene.Scene, collection string) bool {
	for _, s := range scenes {
		if inv.Uses(s, collection) {
			return true
		}
	}
	return false
}

// usedMaterials lists the materials referenced by library blueprint objects, sorted.
func usedMaterials(inv scene.Inventory, g *blueprint.Graph, library []*scene.Scene) []string {
	set := domain.NewSet()
	for _, obj := range libraryObjects(inv, g, library) {
		for _, m := range obj.Materials {
			set.Add(m)
		}
	}
	return set.Sorted()
}

// injectMaterialInfo points every library object with a material at the
// materials library file.
func injectMaterialInfo(host Host, g *blueprint.Graph, library []*scene.Scene, libraryPath string) error {
	for _, obj := range libraryObjects(host, g, library) {
		if len(obj.Materials) == 0 {
			continue
		}
		info := fmt.Sprintf("(name: %q, path: %q)", obj.Materials[0], libraryPath)
		if err := host.SetObjectProperty(obj.Name, MaterialInfoProperty, info); err != nil {
			return fmt.Errorf("material info for %s: %w", obj.Name, err)
		}
	}
	return nil
}

func clearMaterialInfo(host Host, g *blueprint.Graph, library []*scene.Scene) {
	for _, obj := range libraryObjects(host, g, library) {
		host.DeleteObjectProperty(obj.Name, MaterialInfoProperty)
	}
}
