package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ShaderMode selects how the pipeline's own WGSL programs reach the device.
type ShaderMode int

const (
	// ShaderWGSL hands WGSL source to the backend, which translates it.
	ShaderWGSL ShaderMode = iota

	// ShaderSPIRV translates WGSL to SPIR-V with naga before module creation.
	// Translation errors then surface at pipeline construction with the
	// naga diagnostic instead of a backend-specific one.
	ShaderSPIRV
)

// String returns the mode name.
func (m ShaderMode) String() string {
	switch m {
	case ShaderWGSL:
		return "WGSL"
	case ShaderSPIRV:
		return "SPIR-V"
	default:
		return fmt.Sprintf("ShaderMode(%d)", int(m))
	}
}

// spirvWords converts a little-endian SPIR-V byte stream into words.
// Trailing bytes that do not form a full word are dropped.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// shaderSource prepares WGSL for module creation according to mode.
func shaderSource(mode ShaderMode, wgsl string) (hal.ShaderSource, error) {
	if wgsl == "" {
		return hal.ShaderSource{}, fmt.Errorf("empty shader source")
	}
	if mode != ShaderSPIRV {
		return hal.ShaderSource{WGSL: wgsl}, nil
	}
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("translate WGSL to SPIR-V: %w", err)
	}
	return hal.ShaderSource{SPIRV: spirvWords(spirv)}, nil
}

// createShader builds a shader module from embedded WGSL.
func createShader(device hal.Device, mode ShaderMode, label, wgsl string) (hal.ShaderModule, error) {
	src, err := shaderSource(mode, wgsl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: src,
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	return module, nil
}
