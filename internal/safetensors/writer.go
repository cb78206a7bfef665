package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// Tensor is one F32 tensor to be written.
type Tensor struct {
	Shape []int
	Data  []float32
}

// WriteF32 writes tensors to path in name order with contiguous offsets.
// The file is written to a temporary name and renamed into place.
func WriteF32(path string, tensors map[string]Tensor, metadata map[string]string) (err error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return fmt.Errorf("safetensors: reserved tensor name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var off int64
	for _, name := range names {
		t := tensors[name]
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		if n != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d values, got %d", name, t.Shape, n, len(t.Data))
		}
		end := off + int64(4*n)
		header[name] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: []int64{off, end}}
		off = end
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// Pad with spaces so the data section is 8-byte aligned.
	for (8+len(hdr))%8 != 0 {
		hdr = append(hdr, ' ')
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(hdr)))
	if _, err = w.Write(buf[:]); err != nil {
		return err
	}
	if _, err = w.Write(hdr); err != nil {
		return err
	}
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			if _, err = w.Write(buf[:4]); err != nil {
				return err
			}
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
