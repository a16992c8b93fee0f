package blockkey

// Payload is a volatile data holder: it may be observed before it has been
// populated. IsValid is monotone — once true, a Payload never reports false
// again. Bytes exposes the raw samples once valid; loaders decide the
// concrete representation (plain slice, compressed, memory-mapped, ...).
type Payload interface {
	IsValid() bool
	Bytes() []byte
}

// Block is a 3D rectangular tile of one mipmap level: its shape, its origin
// in that level's voxel coordinates, and a (possibly still invalid)
// Payload. A Block whose Payload reports IsValid()==false is a placeholder.
type Block struct {
	Dims    [3]int
	Origin  [3]int64
	Payload Payload
}

// IsPlaceholder reports whether this block's payload has not yet loaded.
func (b Block) IsPlaceholder() bool {
	return b.Payload == nil || !b.Payload.IsValid()
}

// RawPayload is the default Payload implementation: a plain byte slice and
// a validity flag. Reference BlockLoader implementations in package loader
// use it; callers that bring their own codec (e.g. compressed payloads)
// implement Payload directly instead.
type RawPayload struct {
	valid bool
	data  []byte
}

// NewPlaceholderPayload returns an invalid RawPayload sized for dims voxels
// at bytesPerElement bytes each. This is the customary return value of a
// BlockLoader's EmptyArray method.
func NewPlaceholderPayload(dims [3]int, bytesPerElement int) *RawPayload {
	n := dims[0] * dims[1] * dims[2] * bytesPerElement
	if n < 0 {
		n = 0
	}
	return &RawPayload{data: make([]byte, n)}
}

// NewValidPayload wraps already-loaded bytes as a valid RawPayload.
func NewValidPayload(data []byte) *RawPayload {
	return &RawPayload{valid: true, data: data}
}

func (p *RawPayload) IsValid() bool { return p != nil && p.valid }
func (p *RawPayload) Bytes() []byte { return p.data }

// MarkValid swaps in loaded data and flips validity. Once called, IsValid
// never reports false again for this payload instance; callers must not
// call MarkValid twice on the same instance since validity transitions
// invalid->valid at most once and never back.
func (p *RawPayload) MarkValid(data []byte) {
	p.data = data
	p.valid = true
}
