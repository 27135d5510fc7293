// Package models loads triangle meshes from STL and glTF files and turns
// them into soups the rasterizer can draw.
package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/taigrr/zspan/pkg/geom"
	"github.com/taigrr/zspan/pkg/math3d"
)

// ErrMalformed is returned for mesh input that cannot be decoded.
var ErrMalformed = errors.New("models: malformed mesh")

// ErrUnknownFormat is returned by Load for unsupported file extensions.
var ErrUnknownFormat = errors.New("models: unknown mesh format")

// Mesh is an indexed triangle mesh. A vertex's index is the tag it carries
// into the soup.
type Mesh struct {
	Name     string
	Vertices []math3d.Vec3
	Faces    []Face

	// Bounding box (calculated on load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// Face is a triangle as three indices into Mesh.Vertices.
type Face struct {
	V [3]int
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{Name: name}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(p math3d.Vec3) int {
	m.Vertices = append(m.Vertices, p)
	return len(m.Vertices) - 1
}

// AddFace appends a face. Indices must refer to existing vertices.
func (m *Mesh) AddFace(a, b, c int) error {
	for _, i := range [3]int{a, b, c} {
		if i < 0 || i >= len(m.Vertices) {
			return fmt.Errorf("%w: face index %d out of range [0, %d)", ErrMalformed, i, len(m.Vertices))
		}
	}
	m.Faces = append(m.Faces, Face{V: [3]int{a, b, c}})
	return nil
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0]
	m.BoundsMax = m.Vertices[0]

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v)
		m.BoundsMax = m.BoundsMax.Max(v)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.BoundsMax.Sub(m.BoundsMin)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// Soup returns one triangle per face, each vertex tagged with its index.
func (m *Mesh) Soup() geom.Soup {
	soup := make(geom.Soup, len(m.Faces))
	for i, f := range m.Faces {
		var vs [3]geom.Vertex
		for j, idx := range f.V {
			vs[j] = geom.Vertex{Pos: m.Vertices[idx], Tag: idx}
		}
		soup[i] = geom.TriangleOf(vs)
	}
	return soup
}

// Load reads a mesh, choosing the decoder by file extension.
func Load(path string) (*Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		return LoadSTL(path)
	case ".glb", ".gltf":
		return LoadGLB(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
}
