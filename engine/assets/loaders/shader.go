package loaders

import (
	"errors"
	"fmt"
	"os"
)

// spirvMagic is the first word of every SPIR-V module, little endian.
const spirvMagic uint32 = 0x07230203

var ErrNotSPIRV = errors.New("not a SPIR-V module")

// Resource is what a loader hands back to the asset manager.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}

// ShaderLoader reads a SPIR-V binary. The bytes are handed to pipeline
// creation untouched, only the header is checked.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := checkSPIRV(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	name, _ := params.(string)
	return &Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(res *Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}

func checkSPIRV(b []byte) error {
	if len(b) < 20 || len(b)%4 != 0 {
		return fmt.Errorf("%d bytes: %w", len(b), ErrNotSPIRV)
	}
	code := bytesToBytecode(b[:4])
	if code[0] != spirvMagic {
		return fmt.Errorf("magic %#08x: %w", code[0], ErrNotSPIRV)
	}
	return nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}
