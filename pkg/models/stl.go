package models

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/taigrr/zspan/pkg/geom"
	"github.com/taigrr/zspan/pkg/math3d"
)

const (
	stlHeaderSize = 80
	stlFacetSize  = 50 // normal, 3 vertices, attribute count
)

// LoadSTL loads an ASCII or binary STL file.
func LoadSTL(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stl: %w", err)
	}
	defer f.Close()

	mesh, err := DecodeSTL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	mesh.Name = filepath.Base(path)
	return mesh, nil
}

// ParseSTL reads an STL stream into a soup. Vertex tags count up from zero
// in read order.
func ParseSTL(r io.Reader) (geom.Soup, error) {
	mesh, err := DecodeSTL(r)
	if err != nil {
		return nil, err
	}
	return mesh.Soup(), nil
}

// DecodeSTL reads an STL stream into a mesh. Binary input is recognized by
// its facet count matching the stream length; anything else is read as text.
func DecodeSTL(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}

	var mesh *Mesh
	if isBinarySTL(data) {
		mesh, err = decodeBinarySTL(data)
	} else {
		mesh, err = decodeASCIISTL(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	mesh.CalculateBounds()
	return mesh, nil
}

func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlFacetSize
}

// decodeASCIISTL accumulates "vertex x y z" records and closes a triangle at
// every "endloop". Other records are ignored.
func decodeASCIISTL(r io.Reader) (*Mesh, error) {
	mesh := NewMesh("")
	var (
		loop   [3]int
		n      int
		lineNo int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "vertex":
			if n == 3 {
				return nil, fmt.Errorf("%w: line %d: more than 3 vertices in loop", ErrMalformed, lineNo)
			}
			p, err := parseVertex(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			loop[n] = mesh.AddVertex(p)
			n++
		case "endloop":
			if n != 3 {
				return nil, fmt.Errorf("%w: line %d: loop has %d vertices", ErrMalformed, lineNo, n)
			}
			if err := mesh.AddFace(loop[0], loop[1], loop[2]); err != nil {
				return nil, err
			}
			n = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stl: %w", err)
	}
	if n != 0 {
		return nil, fmt.Errorf("%w: unterminated loop at end of input", ErrMalformed)
	}
	return mesh, nil
}

func parseVertex(fields []string) (math3d.Vec3, error) {
	if len(fields) < 3 {
		return math3d.Vec3{}, fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields))
	}
	var c [3]float64
	for i := range c {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return math3d.Vec3{}, err
		}
		c[i] = f
	}
	return math3d.V3(c[0], c[1], c[2]), nil
}

func decodeBinarySTL(data []byte) (*Mesh, error) {
	count := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	mesh := NewMesh("")
	mesh.Vertices = make([]math3d.Vec3, 0, count*3)
	mesh.Faces = make([]Face, 0, count)

	off := stlHeaderSize + 4
	for range count {
		// Skip the facet normal.
		p := off + 12
		var idx [3]int
		for j := range idx {
			idx[j] = mesh.AddVertex(math3d.V3(
				readFloat32(data[p:]),
				readFloat32(data[p+4:]),
				readFloat32(data[p+8:]),
			))
			p += 12
		}
		if err := mesh.AddFace(idx[0], idx[1], idx[2]); err != nil {
			return nil, err
		}
		off += stlFacetSize
	}
	return mesh, nil
}

// readFloat32 reads a little-endian float32 as float64.
func readFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}
