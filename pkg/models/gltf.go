package models

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/zspan/pkg/math3d"
)

// LoadGLB loads a binary or JSON glTF file. All triangle primitives of all
// meshes are merged into one Mesh.
func LoadGLB(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	mesh, err := meshFromDocument(doc, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mesh, nil
}

func meshFromDocument(doc *gltf.Document, name string) (*Mesh, error) {
	mesh := NewMesh(name)
	for _, m := range doc.Meshes {
		if err := processMesh(doc, m, mesh); err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
	}
	mesh.CalculateBounds()
	return mesh, nil
}

// processMesh appends the triangles of every primitive in m.
func processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			// Lines and points have no area to fill.
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}

		positions, err := readPositions(doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		base := len(mesh.Vertices)
		for _, p := range positions {
			mesh.AddVertex(p)
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			err := mesh.AddFace(base+indices[i], base+indices[i+1], base+indices[i+2])
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// accessorBytes returns the buffer bytes an accessor reads from along with
// its start offset and element stride.
func accessorBytes(doc *gltf.Document, idx int, elemSize int) (data []byte, start, stride, count int, err error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, 0, 0, 0, fmt.Errorf("%w: accessor %d out of range", ErrMalformed, idx)
	}
	accessor := doc.Accessors[idx]
	if accessor == nil || accessor.BufferView == nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: accessor has no buffer view", ErrMalformed)
	}

	vi := *accessor.BufferView
	if vi < 0 || vi >= len(doc.BufferViews) || doc.BufferViews[vi] == nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: buffer view %d out of range", ErrMalformed, vi)
	}
	view := doc.BufferViews[vi]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) || doc.Buffers[view.Buffer] == nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: buffer %d out of range", ErrMalformed, view.Buffer)
	}
	buffer := doc.Buffers[view.Buffer]
	if buffer.Data == nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: buffer has no data", ErrMalformed)
	}

	start = view.ByteOffset + accessor.ByteOffset
	stride = view.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	count = accessor.Count
	if start < 0 || stride < 0 || count < 0 {
		return nil, 0, 0, 0, fmt.Errorf("%w: accessor %d has a negative offset, stride or count", ErrMalformed, idx)
	}

	if count > 0 && start+(count-1)*stride+elemSize > len(buffer.Data) {
		return nil, 0, 0, 0, fmt.Errorf("%w: accessor %d overruns its buffer", ErrMalformed, idx)
	}
	return buffer.Data, start, stride, count, nil
}

// readPositions reads a float VEC3 accessor.
func readPositions(doc *gltf.Document, idx int) ([]math3d.Vec3, error) {
	if idx >= 0 && idx < len(doc.Accessors) && doc.Accessors[idx] != nil {
		acc := doc.Accessors[idx]
		if acc.Type != gltf.AccessorVec3 {
			return nil, fmt.Errorf("%w: expected VEC3, got %v", ErrMalformed, acc.Type)
		}
		if acc.ComponentType != gltf.ComponentFloat {
			return nil, fmt.Errorf("%w: expected float positions, got %v", ErrMalformed, acc.ComponentType)
		}
	}

	data, start, stride, count, err := accessorBytes(doc, idx, 12)
	if err != nil {
		return nil, err
	}

	result := make([]math3d.Vec3, count)
	for i := range count {
		b := data[start+i*stride:]
		result[i] = math3d.V3(readFloat32(b), readFloat32(b[4:]), readFloat32(b[8:]))
	}
	return result, nil
}

// readIndices reads an unsigned SCALAR accessor.
func readIndices(doc *gltf.Document, idx int) ([]int, error) {
	if idx < 0 || idx >= len(doc.Accessors) || doc.Accessors[idx] == nil {
		return nil, fmt.Errorf("%w: accessor %d out of range", ErrMalformed, idx)
	}

	var size int
	switch ct := doc.Accessors[idx].ComponentType; ct {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("%w: unsupported index type %v", ErrMalformed, ct)
	}

	data, start, stride, count, err := accessorBytes(doc, idx, size)
	if err != nil {
		return nil, err
	}

	result := make([]int, count)
	for i := range count {
		b := data[start+i*stride:]
		switch size {
		case 1:
			result[i] = int(b[0])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(b))
		case 4:
			result[i] = int(binary.LittleEndian.Uint32(b))
		}
	}
	return result, nil
}
