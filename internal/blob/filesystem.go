package blob

import (
	"autoexport/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// Retargeter is implemented by stores whose location can move.
type Retargeter interface {
	Retarget(root string) error
}

// Retarget points s at root when the driver supports it. It reports
// whether s was moved.
func Retarget(s Store, root string) (bool, error) {
	r, ok := s.(Retargeter)
	if !ok {
		return false, nil
	}
	if err := r.Retarget(root); err != nil {
		return false, err
	}
	return true, nil
}
