package assets

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrEmptyMesh   = errors.New("mesh contains no triangles")
	ErrInvalidMesh = errors.New("mesh face references a missing vertex")
)

// Vertex is the interleaved layout consumed by the vertex stage: position at
// location 0, color at location 1, texture coordinate at location 2.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

type meshBuilder struct {
	decoder        *obj.Decoder
	uniqueVertices map[vertexKey]uint32
	mesh           Mesh
}

type vertexKey struct {
	position int
	uv       int
}

// addVertex appends the face corner at faceIndex. The decoder does not check
// face indices against the vertex list, so that happens here.
func (b *meshBuilder) addVertex(face obj.Face, faceIndex int) error {
	key := vertexKey{position: face.Vertices[faceIndex], uv: -1}
	if faceIndex < len(face.Uvs) {
		key.uv = face.Uvs[faceIndex]
	}

	if key.position < 0 || key.position*3+2 >= len(b.decoder.Vertices) {
		return errors.Wrapf(ErrInvalidMesh, "position %d of %d", key.position, len(b.decoder.Vertices)/3)
	}
	// Faces without texture coordinates carry a sentinel uv index.
	if key.uv < 0 || key.uv*2+1 >= len(b.decoder.Uvs) {
		key.uv = -1
	}

	index, vertexExists := b.uniqueVertices[key]
	if !vertexExists {
		vert := Vertex{
			Position: mgl32.Vec3{
				b.decoder.Vertices[key.position*3],
				b.decoder.Vertices[key.position*3+1],
				b.decoder.Vertices[key.position*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}

		if key.uv >= 0 {
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, vert)
		b.uniqueVertices[key] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
	return nil
}

// DecodeMesh reads a Wavefront OBJ stream and flattens every face into an
// indexed triangle list, deduplicating identical position/uv pairs. material
// may be nil.
func DecodeMesh(model io.Reader, material io.Reader) (*Mesh, error) {
	if material == nil {
		material = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(model, material)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	builder := &meshBuilder{
		decoder:        decoder,
		uniqueVertices: make(map[vertexKey]uint32),
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// fan-triangulate polygons
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range [3]int{0, i - 1, i} {
					if err := builder.addVertex(face, corner); err != nil {
						return nil, errors.Wrapf(err, "object %s", decodedObj.Name)
					}
				}
			}
		}
	}

	if len(builder.mesh.Indices) == 0 {
		return nil, ErrEmptyMesh
	}

	return &builder.mesh, nil
}
