package grid

// Engine identifies one of the three processor slots of a worker core:
// two data-movement engines and one compute engine.
type Engine int

const (
	EngineMovement0 Engine = iota
	EngineMovement1
	EngineCompute
)

// Name returns the name of the engine.
func (e Engine) Name() string {
	switch e {
	case EngineMovement0:
		return "Movement0"
	case EngineMovement1:
		return "Movement1"
	case EngineCompute:
		return "Compute"
	default:
		panic("unsupported kernel engine")
	}
}

// DataFormat describes the element encoding of a circular-buffer slot.
type DataFormat int

const (
	FormatInvalid DataFormat = iota
	FormatFloat32
	FormatFloat16
	FormatFloat16B
	FormatBfp8B
	FormatUInt32
)

// TileBytes returns the byte size of one 32x32 element tile in the
// format, the page granularity of tile-sized buffers.
func (f DataFormat) TileBytes() uint32 {
	switch f {
	case FormatFloat32, FormatUInt32:
		return 32 * 32 * 4
	case FormatFloat16, FormatFloat16B:
		return 32 * 32 * 2
	case FormatBfp8B:
		// One byte per element plus a shared exponent per 16-element
		// face row.
		return 32*32 + 64
	default:
		panic("unsupported data format")
	}
}

// Name returns the name of the data format.
func (f DataFormat) Name() string {
	switch f {
	case FormatFloat32:
		return "Float32"
	case FormatFloat16:
		return "Float16"
	case FormatFloat16B:
		return "Float16B"
	case FormatBfp8B:
		return "Bfp8B"
	case FormatUInt32:
		return "UInt32"
	default:
		return "Invalid"
	}
}
