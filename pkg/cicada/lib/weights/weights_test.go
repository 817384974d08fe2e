package weights

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeSafetensors builds a minimal F32 safetensors file for the given
// tensors.
func writeSafetensors(t *testing.T, tensors map[string][]float32) string {
	t.Helper()

	header := map[string]any{}
	var data []byte
	offset := 0
	for name, values := range tensors {
		byteLen := len(values) * 4
		header[name] = map[string]any{
			"dtype":        "F32",
			"shape":        []int{len(values)},
			"data_offsets": []int{offset, offset + byteLen},
		}
		for _, v := range values {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}
		offset += byteLen
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshaling header: %v", err)
	}

	var file []byte
	file = binary.LittleEndian.AppendUint64(file, uint64(len(headerJSON)))
	file = append(file, headerJSON...)
	file = append(file, data...)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func TestLoadSafetensors(t *testing.T) {
	path := writeSafetensors(t, map[string][]float32{
		"encoder.first.weight": {1, -2, 3.5},
		"encoder.first.bias":   {0.25},
	})
	sd, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w := sd["encoder.first.weight"]
	if len(w) != 3 || w[0] != 1 || w[1] != -2 || w[2] != 3.5 {
		t.Fatalf("weight = %v, want [1 -2 3.5]", w)
	}
	if sd["encoder.first.bias"][0] != 0.25 {
		t.Fatalf("bias = %v, want [0.25]", sd["encoder.first.bias"])
	}
}

func TestLoadSafetensorsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := LoadSafetensors(path); err == nil {
		t.Fatal("truncated file should return error")
	}
}

func TestLoadSafetensorsBadDtype(t *testing.T) {
	header := `{"x": {"dtype": "F16", "shape": [1], "data_offsets": [0, 2]}}`
	var file []byte
	file = binary.LittleEndian.AppendUint64(file, uint64(len(header)))
	file = append(file, header...)
	file = append(file, 0, 0)
	path := filepath.Join(t.TempDir(), "f16.safetensors")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := LoadSafetensors(path); err == nil {
		t.Fatal("non-F32 tensor should return error")
	}
}

func TestLoadJSONNested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	content := `{"state_dict": {"a": [1, 2], "b": [3]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	sd, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(sd["a"]) != 2 || sd["b"][0] != 3 {
		t.Fatalf("state dict = %v", sd)
	}
}

func TestLoadJSONFlat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	if err := os.WriteFile(path, []byte(`{"a": [1]}`), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	sd, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	if sd["a"][0] != 1 {
		t.Fatalf("state dict = %v", sd)
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	if _, err := Load("model.bin"); err == nil {
		t.Fatal("unknown extension should return error")
	}
}

func TestStripPrefix(t *testing.T) {
	sd := StateDict{
		"encoder.first.weight": {1},
		"decoder.first.weight": {2},
	}
	enc := sd.StripPrefix("encoder")
	if len(enc) != 1 || enc["first.weight"][0] != 1 {
		t.Fatalf("stripped dict = %v", enc)
	}
}

func TestApply(t *testing.T) {
	target := map[string][]float32{
		"w": make([]float32, 3),
		"b": make([]float32, 1),
	}
	sd := StateDict{
		"w":     {1, 2, 3},
		"b":     {4},
		"extra": {9},
	}
	if err := Apply(sd, target, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if target["w"][2] != 3 || target["b"][0] != 4 {
		t.Fatalf("applied params = %v", target)
	}
}

func TestApplyMissingParameter(t *testing.T) {
	target := map[string][]float32{"w": make([]float32, 3)}
	if err := Apply(StateDict{}, target, nil); err == nil {
		t.Fatal("missing parameter should return error")
	}
}

func TestApplyLengthMismatch(t *testing.T) {
	target := map[string][]float32{"w": make([]float32, 3)}
	sd := StateDict{"w": {1, 2}}
	err := Apply(sd, target, nil)
	if err == nil {
		t.Fatal("length mismatch should return error")
	}
	if !strings.Contains(err.Error(), `"w"`) {
		t.Fatalf("error %q should name the parameter", err)
	}
}
