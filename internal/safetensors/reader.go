// Package safetensors reads and writes model parameters in the safetensors
// container: an 8-byte little-endian header length, a JSON header mapping
// tensor names to dtype, shape and byte range, then the raw data.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"
)

var (
	ErrCorruptFile    = errors.New("safetensors: corrupt file")
	ErrTensorNotFound = errors.New("safetensors: tensor not found")
	ErrUnsupported    = errors.New("safetensors: unsupported dtype")
)

const metadataKey = "__metadata__"

// maxHeaderLen bounds the JSON header so a corrupt length cannot trigger a
// huge allocation.
const maxHeaderLen = 100 << 20

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an open parameter file. The data section is memory-mapped when
// the platform allows it and read into memory otherwise.
type File struct {
	Path     string
	Tensors  map[string]TensorInfo
	Metadata map[string]string

	data    []byte
	body    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps path read-only and parses its header. The returned file must
// be closed to release the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 8 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s: size %d", ErrCorruptFile, path, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		sf, parseErr := parse(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return sf, nil
	}

	data = make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parse(path, data, false)
}

func parse(path string, data []byte, mmapped bool) (*File, error) {
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > maxHeaderLen || headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("%w: %s: header length %d", ErrCorruptFile, path, headerLen)
	}
	header := data[8 : 8+headerLen]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
	}
	var meta map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: metadata: %v", ErrCorruptFile, path, err)
		}
		delete(raw, metadataKey)
	}

	body := data[8+headerLen:]
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrCorruptFile, name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrCorruptFile, name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > int64(len(body)) {
			return nil, fmt.Errorf("%w: tensor %s: offsets [%d, %d) outside %d data bytes", ErrCorruptFile, name, start, end, len(body))
		}
		tensors[name] = TensorInfo{DType: th.DType, Shape: th.Shape, Start: start, End: end}
	}
	return &File{
		Path:     path,
		Tensors:  tensors,
		Metadata: meta,
		data:     data,
		body:     body,
		mmapped:  mmapped,
	}, nil
}

// Close releases the mapping. Slices returned by ReadTensor are invalid
// afterwards.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data, f.body, f.mmapped = nil, nil, false
	return err
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// ReadTensor returns the raw bytes of name without copying.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	if f.body == nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: file closed", name)
	}
	return f.body[t.Start:t.End], t, nil
}

// ReadTensorF32 decodes name into a freshly allocated float32 slice.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	out := make([]float32, n)
	switch info.DType {
	case "F32":
		if len(raw) != n*4 {
			return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: %d bytes for %d f32 values", ErrCorruptFile, name, len(raw), n)
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "BF16":
		if len(raw) != n*2 {
			return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: %d bytes for %d bf16 values", ErrCorruptFile, name, len(raw), n)
		}
		for i := range out {
			out[i] = bf16ToF32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	default:
		return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s is %s", ErrUnsupported, name, info.DType)
	}
	return out, info, nil
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}
