package serialization

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kron-ml/kron/internal/tensor"
)

func makeState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()

	step, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	step.AsFloat64()[0] = 42

	factor, err := tensor.NewRaw(tensor.Shape{3, 3}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	for i := range factor.AsFloat64() {
		factor.AsFloat64()[i] = float64(i) * 0.5
	}

	buf, err := tensor.NewRaw(tensor.Shape{4}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	copy(buf.AsFloat32(), []float32{1, -2, 3.5, 0})

	return map[string]*tensor.RawTensor{
		"step":               step,
		"group.0.C":          factor,
		"group.0.momentum.0": buf,
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opt.kron")
	state := makeState(t)

	if err := Save(path, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != len(state) {
		t.Fatalf("loaded %d tensors, want %d", len(loaded), len(state))
	}

	for name, want := range state {
		got, ok := loaded[name]
		if !ok {
			t.Fatalf("missing tensor %q", name)
		}
		if got.DType() != want.DType() {
			t.Errorf("%s: dtype %v, want %v", name, got.DType(), want.DType())
		}
		if !got.Shape().Equal(want.Shape()) {
			t.Errorf("%s: shape %v, want %v", name, got.Shape(), want.Shape())
		}
		wantBytes := want.Bytes()
		for i, b := range got.Bytes() {
			if b != wantBytes[i] {
				t.Fatalf("%s: byte %d differs", name, i)
			}
		}
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	state := makeState(t)

	pathA := filepath.Join(dir, "a.kron")
	pathB := filepath.Join(dir, "b.kron")
	if err := Save(pathA, state); err != nil {
		t.Fatal(err)
	}
	if err := Save(pathB, state); err != nil {
		t.Fatal(err)
	}

	a, _ := os.ReadFile(pathA)
	b, _ := os.ReadFile(pathB)
	if string(a) != string(b) {
		t.Error("saving the same state twice must produce identical bytes")
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opt.kron")
	if err := Save(path, makeState(t)); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a bit in the last byte, inside the data section.
	content[len(content)-1] ^= 0xFF
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Load(path)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.kron")
	if err := os.WriteFile(path, []byte("NOTAKRONFILE"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a file with bad magic")
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opt.kron")
	if err := Save(path, makeState(t)); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Version field sits right after the 4-byte magic.
	content[4] = 99
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected an error for an unsupported format version")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.kron")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
