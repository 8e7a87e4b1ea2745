package assets

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

var ErrInvalidShader = errors.New("invalid SPIR-V blob")

// ShaderBytecode converts a SPIR-V binary into the word stream a shader module
// is created from. Words are little-endian.
func ShaderBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrInvalidShader, "empty blob")
	}
	if len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidShader, "length %d is not a multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	return byteCode, nil
}
