package nvm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var _ Device = (*FileDevice)(nil)

// FileDevice is a file-backed device, useful to persist engine state on a
// host. A fresh file reads as zeroes, which the engine treats as an empty
// medium.
type FileDevice struct {
	fd   int
	size uint32
}

func NewFileDevice(path string, size uint32) (*FileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFREG) != 0 && uint64(stat.Size) != uint64(size) {
		err = unix.Ftruncate(fd, int64(size))
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return &FileDevice{fd: fd, size: size}, nil
}

func (d *FileDevice) ReadByte(a uint32) (byte, error) {
	var buf [1]byte
	err := d.ReadAt(a, buf[:])
	return buf[0], err
}

func (d *FileDevice) ReadAt(a uint32, buf []byte) error {
	if a+uint32(len(buf)) > d.size {
		return ErrOutOfRange
	}
	n, err := unix.Pread(d.fd, buf, int64(a))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("nvm: short read at %d: %d of %d bytes", a, n, len(buf))
	}
	return nil
}

func (d *FileDevice) WriteByte(a uint32, v byte) error {
	buf := [1]byte{v}
	return d.WriteAt(a, buf[:])
}

func (d *FileDevice) WriteAt(a uint32, buf []byte) error {
	if a+uint32(len(buf)) > d.size {
		return ErrOutOfRange
	}
	n, err := unix.Pwrite(d.fd, buf, int64(a))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("nvm: short write at %d: %d of %d bytes", a, n, len(buf))
	}
	return nil
}

func (d *FileDevice) Size() uint32 {
	return d.size
}

// Sync flushes outstanding writes to stable storage.
func (d *FileDevice) Sync() error {
	return unix.Fsync(d.fd)
}

func (d *FileDevice) Close() error {
	return unix.Close(d.fd)
}
