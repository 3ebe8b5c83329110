package safetensors

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	SingleFileName = "model.safetensors"
	IndexFileName  = "model.safetensors.index.json"
)

// Checkpoint presents one or more safetensors shards as a single tensor
// namespace. Sharded checkpoints are described by an index file mapping each
// tensor name to the shard that holds it.
type Checkpoint struct {
	dir    string
	shards map[string]*File // shard file name -> open file
	byName map[string]*File // tensor name -> owning shard
}

type indexFile struct {
	Metadata  map[string]json.RawMessage `json:"metadata"`
	WeightMap map[string]string          `json:"weight_map"`
}

// OpenCheckpoint opens the checkpoint stored in dir. A single-file
// model.safetensors takes precedence; otherwise the shard index is consulted.
func OpenCheckpoint(dir string) (*Checkpoint, error) {
	single := filepath.Join(dir, SingleFileName)
	if _, err := os.Stat(single); err == nil {
		f, err := Open(single)
		if err != nil {
			return nil, err
		}
		cp := &Checkpoint{
			dir:    dir,
			shards: map[string]*File{SingleFileName: f},
			byName: make(map[string]*File, len(f.Tensors)),
		}
		for name := range f.Tensors {
			cp.byName[name] = f
		}
		return cp, nil
	}

	indexPath := filepath.Join(dir, IndexFileName)
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: neither %s nor %s found", dir, SingleFileName, IndexFileName)
	}
	var idx indexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFileName, err)
	}
	if len(idx.WeightMap) == 0 {
		return nil, fmt.Errorf("%s: empty weight_map", IndexFileName)
	}

	cp := &Checkpoint{
		dir:    dir,
		shards: make(map[string]*File),
		byName: make(map[string]*File, len(idx.WeightMap)),
	}
	for tensorName, shardName := range idx.WeightMap {
		shard, ok := cp.shards[shardName]
		if !ok {
			shard, err = Open(filepath.Join(dir, shardName))
			if err != nil {
				return nil, fmt.Errorf("open shard %s: %w", shardName, err)
			}
			cp.shards[shardName] = shard
		}
		if _, ok := shard.Tensors[tensorName]; !ok {
			return nil, fmt.Errorf("shard %s: missing tensor %s listed in weight_map", shardName, tensorName)
		}
		cp.byName[tensorName] = shard
	}
	return cp, nil
}

// NumShards returns how many shard files back this checkpoint.
func (cp *Checkpoint) NumShards() int { return len(cp.shards) }

// Names returns all tensor names in the checkpoint, in unspecified order.
func (cp *Checkpoint) Names() []string {
	names := make([]string, 0, len(cp.byName))
	for name := range cp.byName {
		names = append(names, name)
	}
	return names
}

func (cp *Checkpoint) Tensor(name string) (TensorInfo, bool) {
	shard, ok := cp.byName[name]
	if !ok {
		return TensorInfo{}, false
	}
	return shard.Tensor(name)
}

func (cp *Checkpoint) ReadTensor(name string) ([]byte, TensorInfo, error) {
	shard, ok := cp.byName[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	return shard.ReadTensor(name)
}

func (cp *Checkpoint) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	shard, ok := cp.byName[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	return shard.ReadTensorF32(name)
}
