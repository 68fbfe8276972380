// Package shm implements the shared-memory audio buffer from spec §4.6: one
// contiguous region per instance holding interleaved input/output channel
// planes, indexed by per-bus offset tables computed at activation.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sammck-go/abibridge/pkg/bridgeerr"
)

// Format is the sample representation agreed at activation.
type Format int

const (
	Float32 Format = iota
	Float64
)

// BytesPerSample returns the size in bytes of one sample in this format.
func (f Format) BytesPerSample() int {
	if f == Float64 {
		return 8
	}
	return 4
}

// BusLayout describes the channel counts of every input and output bus
// agreed at activation, used to compute the buffer size and offset tables
// per spec §3: Σ(channels_in_bus × samples_per_block × sample_bytes).
type BusLayout struct {
	InputChannels  []int
	OutputChannels []int
	BlockSize      int
	Format         Format
}

// Size returns the total region size this layout requires.
func (l BusLayout) Size() int64 {
	sampleBytes := int64(l.Format.BytesPerSample())
	blockSize := int64(l.BlockSize)
	var total int64
	for _, ch := range l.InputChannels {
		total += int64(ch) * blockSize * sampleBytes
	}
	for _, ch := range l.OutputChannels {
		total += int64(ch) * blockSize * sampleBytes
	}
	return total
}

// Buffer is a named shared-memory region carrying interleaved input/output
// channel planes for one instance, with per-bus offset tables. The native
// side creates and unlinks the backing file (see CreateInstance); the
// foreign side only opens and closes its own mapping of it.
type Buffer struct {
	name   string
	path   string
	file   *os.File
	data   []byte
	layout BusLayout

	inputOffsets  [][]int64
	outputOffsets [][]int64
}

// backingPath returns the backing file of the region name under dir. Using a regular
// file under the same tmpfs-backed directory as the rest of the endpoint
// avoids a second OS-specific shared-memory API; on Linux this directory
// is expected to be tmpfs (as /dev/shm or the endpoint temp root usually
// is), giving the same zero-copy mmap behavior as POSIX shm_open.
func backingPath(dir, name string) string {
	return filepath.Join(dir, name+".shm")
}

// Create allocates a fresh shared region of the size layout.Size() under
// dir, named name, and computes its offset tables. Called on activation.
func Create(dir, name string, layout BusLayout) (*Buffer, error) {
	path := backingPath(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: creating shared audio buffer %q: %s", bridgeerr.Resource, name, err)
	}
	size := layout.Size()
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: sizing shared audio buffer %q: %s", bridgeerr.Resource, name, err)
	}
	return mapFile(f, path, name, layout)
}

// Open maps an existing shared region created by the instance's peer. Used
// by whichever side did not call Create.
func Open(dir, name string, layout BusLayout) (*Buffer, error) {
	path := backingPath(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: opening shared audio buffer %q: %s", bridgeerr.Resource, name, err)
	}
	return mapFile(f, path, name, layout)
}

func mapFile(f *os.File, path, name string, layout BusLayout) (*Buffer, error) {
	size := layout.Size()
	var data []byte
	if size > 0 {
		mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: mapping shared audio buffer %q: %s", bridgeerr.Resource, name, err)
		}
		data = mapped
	}

	b := &Buffer{name: name, path: path, file: f, data: data, layout: layout}
	b.recomputeOffsets()
	return b, nil
}

func offsetTable(channelsPerBus []int, blockSize int, format Format, base int64) [][]int64 {
	stride := int64(blockSize * format.BytesPerSample())
	table := make([][]int64, len(channelsPerBus))
	offset := base
	for bus, channels := range channelsPerBus {
		row := make([]int64, channels)
		for ch := 0; ch < channels; ch++ {
			row[ch] = offset
			offset += stride
		}
		table[bus] = row
	}
	return table
}

// InputPlane returns the byte slice for one input bus/channel's samples.
func (b *Buffer) InputPlane(bus, channel int) []byte {
	off := b.inputOffsets[bus][channel]
	n := int64(b.layout.BlockSize * b.layout.Format.BytesPerSample())
	return b.data[off : off+n]
}

// OutputPlane returns the byte slice for one output bus/channel's samples.
func (b *Buffer) OutputPlane(bus, channel int) []byte {
	off := b.outputOffsets[bus][channel]
	n := int64(b.layout.BlockSize * b.layout.Format.BytesPerSample())
	return b.data[off : off+n]
}

// Layout returns the bus layout this buffer was sized for.
func (b *Buffer) Layout() BusLayout {
	return b.layout
}

// Resize recomputes the region for a new bus layout, per spec §3/§4.6:
// "buffer recomputed/resized on reconfiguration, reused if unchanged."
// If layout.Size() is unchanged from the current size, Resize only
// recomputes the offset tables (cheap, no remap) and returns immediately,
// since sample format and bus counts can change layout without changing
// total size. Otherwise it unmaps, truncates the backing file to the new
// size, and remaps. Only the side that owns the file (the one that called
// Create) should call Resize; the peer should Close and Open again after
// being told the resize happened.
func (b *Buffer) Resize(layout BusLayout) error {
	newSize := layout.Size()
	if newSize == b.layout.Size() {
		b.layout = layout
		b.recomputeOffsets()
		return nil
	}

	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return fmt.Errorf("%w: unmapping shared audio buffer %q for resize: %s", bridgeerr.Resource, b.name, err)
		}
		b.data = nil
	}
	if err := b.file.Truncate(newSize); err != nil {
		return fmt.Errorf("%w: resizing shared audio buffer %q: %s", bridgeerr.Resource, b.name, err)
	}
	if newSize > 0 {
		mapped, err := unix.Mmap(int(b.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("%w: remapping shared audio buffer %q: %s", bridgeerr.Resource, b.name, err)
		}
		b.data = mapped
	}
	b.layout = layout
	b.recomputeOffsets()
	return nil
}

func (b *Buffer) recomputeOffsets() {
	b.inputOffsets = offsetTable(b.layout.InputChannels, b.layout.BlockSize, b.layout.Format, 0)
	afterInput := int64(0)
	for _, off := range b.inputOffsets {
		if len(off) > 0 {
			afterInput = off[len(off)-1] + int64(b.layout.BlockSize*b.layout.Format.BytesPerSample())
		}
	}
	b.outputOffsets = offsetTable(b.layout.OutputChannels, b.layout.BlockSize, b.layout.Format, afterInput)
}

// Name returns the shared region's name, as exchanged over the control
// channel so the peer can Open() it.
func (b *Buffer) Name() string {
	return b.name
}

// Close unmaps and releases the region. It does not remove the backing
// file: the side that created it (the native host, via CreateInstance)
// removes it with Unlink (see DestroyInstance); the foreign side only
// closes its own mapping.
func (b *Buffer) Close() error {
	var err error
	if b.data != nil {
		if uerr := unix.Munmap(b.data); uerr != nil {
			err = fmt.Errorf("%w: unmapping shared audio buffer %q: %s", bridgeerr.Resource, b.name, uerr)
		}
		b.data = nil
	}
	if cerr := b.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: closing shared audio buffer file %q: %s", bridgeerr.Resource, b.name, cerr)
	}
	return err
}

// Unlink removes the backing file. Called by the side that called Create
// (the native host, per CreateInstance/DestroyInstance) once the buffer is
// no longer needed by either side.
func (b *Buffer) Unlink() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing shared audio buffer file %q: %s", bridgeerr.Resource, b.name, err)
	}
	return nil
}
