package scene

// Split partitions the inventory's scenes into levels and libraries. Names
// listed in mainNames/libraryNames win; when a list is empty the scenes'
// Kind is used instead. Unknown names are skipped.
func Split(inv Inventory, mainNames, libraryNames []string) (main, library []*Scene) {
	main = pick(inv, mainNames, KindMain)
	library = pick(inv, libraryNames, KindLibrary)
	return main, library
}

// Names returns the scene names in order.
func Names(scenes []*Scene) []string {
	out := make([]string, len(scenes))
	for i, s := range scenes {
		out[i] = s.Name
	}
	return out
}

func pick(inv Inventory, names []string, kind Kind) []*Scene {
	var out []*Scene
	if len(names) == 0 {
		for _, s := range inv.Scenes() {
			if s.Kind == kind {
				out = append(out, s)
			}
		}
		return out
	}
	for _, name := range names {
		if s, ok := inv.Scene(name); ok {
			out = append(out, s)
		}
	}
	return out
}
