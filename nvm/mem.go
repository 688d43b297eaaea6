package nvm

var _ Device = (*MemDevice)(nil)

// MemDevice is RAM-backed memory for tests and host-side use. It counts
// writes per byte and can be armed to fail like a power loss after a given
// number of byte writes.
type MemDevice struct {
	mem        []byte
	writeCount []uint64
	failAfter  uint64 // byte writes until injected power loss, 0 = disarmed
}

// NewMemDevice returns a device of the given size with every byte 0xFF,
// the erased state of most EEPROM parts.
func NewMemDevice(size uint32) *MemDevice {
	return NewMemDeviceFill(size, 0xFF)
}

func NewMemDeviceFill(size uint32, fill byte) *MemDevice {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = fill
	}
	return &MemDevice{
		mem:        mem,
		writeCount: make([]uint64, size),
	}
}

func (d *MemDevice) ReadByte(a uint32) (byte, error) {
	if a >= uint32(len(d.mem)) {
		return 0, ErrOutOfRange
	}
	return d.mem[a], nil
}

func (d *MemDevice) ReadAt(a uint32, buf []byte) error {
	if a+uint32(len(buf)) > uint32(len(d.mem)) {
		return ErrOutOfRange
	}
	copy(buf, d.mem[a:])
	return nil
}

func (d *MemDevice) WriteByte(a uint32, v byte) error {
	if a >= uint32(len(d.mem)) {
		return ErrOutOfRange
	}
	if d.failAfter > 0 {
		d.failAfter--
		if d.failAfter == 0 {
			return ErrPowerLoss
		}
	}
	d.mem[a] = v
	d.writeCount[a]++
	return nil
}

func (d *MemDevice) WriteAt(a uint32, buf []byte) error {
	if a+uint32(len(buf)) > uint32(len(d.mem)) {
		return ErrOutOfRange
	}
	for i, v := range buf {
		if err := d.WriteByte(a+uint32(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (d *MemDevice) Size() uint32 {
	return uint32(len(d.mem))
}

// SetWriteErrorAfter arms a power loss on the n-th byte write from now.
// The failing byte and the rest of the WriteAt call it belongs to are not
// applied. The fault then disarms; later writes succeed.
func (d *MemDevice) SetWriteErrorAfter(n uint64) {
	d.failAfter = n
}

// WriteCount reports how often the byte at a has been written.
func (d *MemDevice) WriteCount(a uint32) uint64 {
	return d.writeCount[a]
}

// Bytes exposes the backing memory. Tests use it to preload cluster images
// and to inspect the medium after operations.
func (d *MemDevice) Bytes() []byte {
	return d.mem
}
