package safetensors

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

// writeRaw creates a file from a header and a data section.
func writeRaw(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf := append(lenBuf[:], headerBytes...)
	buf = append(buf, data...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestWriteThenOpen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	in := map[string]Tensor{
		"b.bias":   {Shape: []int{1, 3}, Data: []float32{0.5, -1, 2}},
		"a.weight": {Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
	}
	if err := WriteF32(path, in, map[string]string{"name": "fld"}); err != nil {
		t.Fatalf("WriteF32: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Metadata["name"] != "fld" {
		t.Fatalf("metadata lost: %v", f.Metadata)
	}
	if len(f.Tensors) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(f.Tensors))
	}
	a, _ := f.Tensor("a.weight")
	b, _ := f.Tensor("b.bias")
	if a.Start != 0 || a.End != 16 || b.Start != 16 || b.End != 28 {
		t.Fatalf("offsets not contiguous in name order: a=%+v b=%+v", a, b)
	}
	for name, want := range in {
		got, info, err := f.ReadTensorF32(name)
		if err != nil {
			t.Fatalf("ReadTensorF32(%s): %v", name, err)
		}
		if len(info.Shape) != len(want.Shape) {
			t.Fatalf("%s: shape %v, want %v", name, info.Shape, want.Shape)
		}
		for i := range want.Data {
			if got[i] != want.Data[i] {
				t.Fatalf("%s[%d] = %g, want %g", name, i, got[i], want.Data[i])
			}
		}
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := WriteF32(path, map[string]Tensor{"w": {Shape: []int{2, 2}, Data: []float32{1}}}, nil)
	if err == nil {
		t.Fatal("expected error for shape mismatch")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("no file should be left behind, stat: %v", statErr)
	}
}

func TestReadTensorBF16(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bf16.safetensors")
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 0x3F80) // 1.0
	binary.LittleEndian.PutUint16(data[2:], 0x4000) // 2.0
	writeRaw(t, path, map[string]any{
		"test": map[string]any{"dtype": "BF16", "shape": []int{2}, "data_offsets": []int64{0, 4}},
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	got, _, err := f.ReadTensorF32("test")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected values %v", got)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.safetensors")); err == nil {
		t.Fatal("expected error for missing file")
	}

	short := filepath.Join(dir, "short.safetensors")
	if err := os.WriteFile(short, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(short); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}

	outside := filepath.Join(dir, "outside.safetensors")
	writeRaw(t, outside, map[string]any{
		"w": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{0, 16}},
	}, make([]byte, 8))
	if _, err := Open(outside); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile for offsets past the data, got %v", err)
	}
}

func TestReadTensorErrors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mixed.safetensors")
	writeRaw(t, path, map[string]any{
		"ints":  map[string]any{"dtype": "I32", "shape": []int{2}, "data_offsets": []int64{0, 8}},
		"short": map[string]any{"dtype": "F32", "shape": []int{4}, "data_offsets": []int64{8, 16}},
	}, make([]byte, 16))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, _, err := f.ReadTensorF32("ints"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, _, err := f.ReadTensorF32("short"); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("expected ErrCorruptFile, got %v", err)
	}
	if _, _, err := f.ReadTensorF32("nope"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("expected ErrTensorNotFound, got %v", err)
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape   []int
		want    int
		wantErr bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{1}, 1, false},
		{[]int{4, 5, 6}, 120, false},
		{[]int{}, 0, true},
		{[]int{0}, 0, true},
		{[]int{2, -1}, 0, true},
	}
	for _, tc := range tests {
		n, err := numElements(tc.shape)
		if tc.wantErr {
			if err == nil {
				t.Errorf("numElements(%v): expected error", tc.shape)
			}
			continue
		}
		if err != nil || n != tc.want {
			t.Errorf("numElements(%v) = %d, %v; want %d", tc.shape, n, err, tc.want)
		}
	}
}
