package export

import (
	"bytes"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"

	"autoexport/pkg/domain"
)

// newNode returns a node carrying t as TRS. Identity components are left
// at their glTF defaults and omitted on encode.
func newNode(name string, t domain.Transform) *gltf.Node {
	n := &gltf.Node{
		Name:        name,
		Translation: [3]float64(t.Location),
		Rotation:    eulerToQuaternion(t.Rotation),
		Scale:       [3]float64(t.Scale),
	}
	if t.Scale == (domain.Vec3{}) {
		n.Scale = [3]float64{1, 1, 1}
	}
	return n
}

// eulerToQuaternion converts XYZ Euler angles in radians to a unit
// quaternion in glTF order (x, y, z, w).
func eulerToQuaternion(e domain.Vec3) [4]float64 {
	sx, cx := math.Sincos(e[0] / 2)
	sy, cy := math.Sincos(e[1] / 2)
	sz, cz := math.Sincos(e[2] / 2)
	return [4]float64{
		sx*cy*cz - cx*sy*sz,
		cx*sy*cz + sx*cy*sz,
		cx*cy*sz - sx*sy*cz,
		cx*cy*cz + sx*sy*sz,
	}
}

// encodeDocument renders the document as .gltf JSON or as a .glb container.
func encodeDocument(doc *gltf.Document, glb bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = glb
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode gltf: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeDocument reads either form back.
func decodeDocument(raw []byte) (*gltf.Document, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(raw)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	return doc, nil
}

// Manifest summarises an exported file.
type Manifest struct {
	Scene     string         `json:"scene"`
	Nodes     []string       `json:"nodes"`
	Materials []string       `json:"materials,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// Inspect decodes a .gltf or .glb file written by ManifestExporter.
func Inspect(raw []byte) (Manifest, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		s := doc.Scenes[*doc.Scene]
		m.Scene = s.Name
		m.Extras, _ = s.Extras.(map[string]any)
	}
	for _, n := range doc.Nodes {
		m.Nodes = append(m.Nodes, n.Name)
	}
	for _, mat := range doc.Materials {
		m.Materials = append(m.Materials, mat.Name)
	}
	return m, nil
}
