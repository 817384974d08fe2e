// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package weights loads model checkpoints and applies them to modules by
// parameter name. Two on-disk formats are supported: safetensors files and
// native JSON checkpoints.
package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// StateDict is a flat parameter-name -> values map.
type StateDict map[string][]float32

// Load reads a checkpoint, selecting the format by extension:
// .safetensors, or .json for native checkpoints.
func Load(path string) (StateDict, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		return LoadSafetensors(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint extension %q (want .safetensors or .json)", ext)
	}
}

// safetensorsEntry is one tensor record in the file header.
type safetensorsEntry struct {
	DType       string  `json:"dtype"`
	Shape       []int64 `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// LoadSafetensors reads a safetensors file: an 8-byte little-endian header
// length, a JSON header mapping tensor names to dtype, shape and byte
// offsets, then the raw tensor buffer. Only F32 tensors are accepted.
func LoadSafetensors(path string) (StateDict, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("checkpoint %s truncated: %d bytes", path, len(raw))
	}
	headerLen := binary.LittleEndian.Uint64(raw[:8])
	if headerLen > uint64(len(raw)-8) {
		return nil, fmt.Errorf("checkpoint %s corrupt: header length %d exceeds file size", path, headerLen)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("parsing checkpoint header: %w", err)
	}
	buf := raw[8+headerLen:]

	sd := StateDict{}
	for name, rawEntry := range header {
		if name == "__metadata__" {
			continue
		}
		var entry safetensorsEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			return nil, fmt.Errorf("parsing header entry %q: %w", name, err)
		}
		if entry.DType != "F32" {
			return nil, fmt.Errorf("tensor %q has dtype %s, only F32 is supported", name, entry.DType)
		}
		begin, end := entry.DataOffsets[0], entry.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(buf)) {
			return nil, fmt.Errorf("tensor %q has offsets [%d, %d) outside the data buffer", name, begin, end)
		}
		byteLen := end - begin
		if byteLen%4 != 0 {
			return nil, fmt.Errorf("tensor %q byte length %d not a multiple of 4", name, byteLen)
		}
		var elems int64 = 1
		for _, d := range entry.Shape {
			elems *= d
		}
		if elems*4 != byteLen {
			return nil, fmt.Errorf("tensor %q shape %v does not match %d bytes", name, entry.Shape, byteLen)
		}
		data := make([]float32, byteLen/4)
		for i := range data {
			bits := binary.LittleEndian.Uint32(buf[begin+int64(i)*4:])
			data[i] = math.Float32frombits(bits)
		}
		sd[name] = data
	}
	return sd, nil
}

// jsonCheckpoint is the native checkpoint layout. The state dict may be
// nested under "state_dict" or form the whole document.
type jsonCheckpoint struct {
	StateDict map[string][]float32 `json:"state_dict"`
}

// LoadJSON reads a native JSON checkpoint.
func LoadJSON(path string) (StateDict, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var ckpt jsonCheckpoint
	if err := json.Unmarshal(raw, &ckpt); err == nil && len(ckpt.StateDict) > 0 {
		return ckpt.StateDict, nil
	}
	var flat map[string][]float32
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	return flat, nil
}

// StripPrefix returns the entries under prefix with the prefix removed,
// used to slice a combined checkpoint into per-module dicts.
func (sd StateDict) StripPrefix(prefix string) StateDict {
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	out := StateDict{}
	for name, v := range sd {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// Apply copies checkpoint values into the module's parameter storage by
// name. Every parameter the module declares must be present with the right
// length; checkpoint entries the module does not declare are logged and
// skipped.
func Apply(sd StateDict, params map[string][]float32, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dst := params[name]
		src, ok := sd[name]
		if !ok {
			return fmt.Errorf("checkpoint is missing parameter %q", name)
		}
		if len(src) != len(dst) {
			return fmt.Errorf("parameter %q has %d values, module expects %d", name, len(src), len(dst))
		}
		copy(dst, src)
	}
	for name := range sd {
		if _, ok := params[name]; !ok {
			log.Debug("checkpoint entry not used by module", zap.String("name", name))
		}
	}
	return nil
}
