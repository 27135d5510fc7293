package models

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalSTL = `solid tri
  facet normal 0 0 1
    outer loop
      vertex 0 0.5 0
      vertex -0.5 -0.5 0
      vertex 0.2 -0.6 0
    endloop
  endfacet
endsolid tri
`

func TestParseSTLMinimal(t *testing.T) {
	soup, err := ParseSTL(strings.NewReader(minimalSTL))
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(soup) != 1 {
		t.Fatalf("Expected 1 triangle, got %d", len(soup))
	}

	// Y-sorted order happens to match read order here.
	for i, v := range soup[0].Vertices() {
		if v.Tag != i {
			t.Errorf("Vertex %d: expected tag %d, got %d", i, i, v.Tag)
		}
	}
}

func TestParseSTLTagsCountAcrossFacets(t *testing.T) {
	two := strings.Repeat("outer loop\nvertex 0 2 0\nvertex 0 1 0\nvertex 0 0 0\nendloop\n", 2)
	soup, err := ParseSTL(strings.NewReader(two))
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(soup) != 2 {
		t.Fatalf("Expected 2 triangles, got %d", len(soup))
	}
	if got := soup[1].Vertex(0).Tag; got != 3 {
		t.Errorf("Expected first vertex of second facet to carry tag 3, got %d", got)
	}
}

func TestParseSTLMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"two vertices", "outer loop\nvertex 0 0 0\nvertex 1 0 0\nendloop\n"},
		{"four vertices", "vertex 0 0 0\nvertex 1 0 0\nvertex 1 1 0\nvertex 0 1 0\nendloop\n"},
		{"bad coordinate", "vertex 0 zero 0\nvertex 1 0 0\nvertex 1 1 0\nendloop\n"},
		{"short vertex", "vertex 0 0\nvertex 1 0 0\nvertex 1 1 0\nendloop\n"},
		{"unterminated", "vertex 0 0 0\nvertex 1 0 0\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSTL(strings.NewReader(tc.input))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseSTLIgnoresOtherRecords(t *testing.T) {
	soup, err := ParseSTL(strings.NewReader("solid\nendsolid\n"))
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(soup) != 0 {
		t.Errorf("Expected empty soup, got %d triangles", len(soup))
	}
}

func binarySTL(facets ...[9]float32) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, stlHeaderSize))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(facets)))
	for _, f := range facets {
		_ = binary.Write(&buf, binary.LittleEndian, [3]float32{0, 0, 1})
		_ = binary.Write(&buf, binary.LittleEndian, f)
		_ = binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func TestDecodeBinarySTL(t *testing.T) {
	data := binarySTL(
		[9]float32{0, 1, 0, -1, 0, 0, 1, 0, 0},
		[9]float32{0, 0, 0.5, 1, 1, 0.5, -1, 1, 0.5},
	)

	mesh, err := DecodeSTL(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeSTL: %v", err)
	}
	if mesh.TriangleCount() != 2 || mesh.VertexCount() != 6 {
		t.Fatalf("Expected 2 triangles and 6 vertices, got %d and %d", mesh.TriangleCount(), mesh.VertexCount())
	}
	if mesh.BoundsMin.X != -1 || mesh.BoundsMax.Z != 0.5 {
		t.Errorf("Unexpected bounds %v - %v", mesh.BoundsMin, mesh.BoundsMax)
	}

	soup := mesh.Soup()
	if !soup[0].IsDelta() {
		t.Errorf("Expected first facet to be a delta")
	}
	if !soup[1].IsNabla() {
		t.Errorf("Expected second facet to be a nabla")
	}
}

func TestLoadSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.stl")
	if err := os.WriteFile(path, []byte(minimalSTL), 0o644); err != nil {
		t.Fatal(err)
	}

	mesh, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mesh.Name != "tri.stl" {
		t.Errorf("Expected name tri.stl, got %q", mesh.Name)
	}
	if c := mesh.Center(); math.Abs(c.X+0.15) > 1e-9 {
		t.Errorf("Unexpected center %v", c)
	}
}

func TestLoadUnknownFormat(t *testing.T) {
	_, err := Load("model.obj")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
}
