package assets

import (
	"context"
	"io"
	"io/fs"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Paths names the files making up a scene, relative to the fs.FS handed to Load.
type Paths struct {
	Model          string
	Material       string
	Texture        string
	VertexShader   string
	FragmentShader string
}

func DefaultPaths() Paths {
	return Paths{
		Model:          "meshes/viking_room.obj",
		Material:       "meshes/viking_room.mtl",
		Texture:        "images/viking_room.png",
		VertexShader:   "shaders/vert.spv",
		FragmentShader: "shaders/frag.spv",
	}
}

// Bundle is everything the renderer needs from disk. The renderer does not
// retain Texture pixels after they have been staged.
type Bundle struct {
	Mesh           *Mesh
	Texture        *Texture
	VertexShader   []uint32
	FragmentShader []uint32
}

// Load decodes the mesh, texture and both shaders concurrently.
func Load(ctx context.Context, fsys fs.FS, paths Paths) (*Bundle, error) {
	bundle := &Bundle{}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		mesh, err := loadMesh(fsys, paths.Model, paths.Material)
		if err != nil {
			return err
		}
		bundle.Mesh = mesh
		return ctx.Err()
	})

	group.Go(func() error {
		file, err := fsys.Open(paths.Texture)
		if err != nil {
			return errors.Wrapf(err, "open texture %s", paths.Texture)
		}
		defer file.Close()

		texture, err := DecodeTexture(file)
		if err != nil {
			return errors.Wrapf(err, "texture %s", paths.Texture)
		}
		bundle.Texture = texture
		return ctx.Err()
	})

	group.Go(func() error {
		code, err := loadShader(fsys, paths.VertexShader)
		bundle.VertexShader = code
		return err
	})

	group.Go(func() error {
		code, err := loadShader(fsys, paths.FragmentShader)
		bundle.FragmentShader = code
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return bundle, nil
}

func loadMesh(fsys fs.FS, modelPath, materialPath string) (*Mesh, error) {
	meshFile, err := fsys.Open(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", modelPath)
	}
	defer meshFile.Close()

	var material io.Reader
	if materialPath != "" {
		matFile, err := fsys.Open(materialPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open material %s", materialPath)
		}
		defer matFile.Close()
		material = matFile
	}

	mesh, err := DecodeMesh(meshFile, material)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", modelPath)
	}
	return mesh, nil
}

func loadShader(fsys fs.FS, path string) ([]uint32, error) {
	blob, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}

	code, err := ShaderBytecode(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return code, nil
}
