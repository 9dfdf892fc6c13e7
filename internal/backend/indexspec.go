package backend

import "encoding/json"

type indexSpecJSON struct {
	Keys   []indexKeyJSON `json:"keys"`
	Unique bool           `json:"unique"`
	Sparse bool           `json:"sparse"`
}

type indexKeyJSON struct {
	Path      string `json:"path"`
	Direction int    `json:"direction"`
}

func encodeIndexSpec(spec IndexSpec) ([]byte, error) {
	doc := indexSpecJSON{Unique: spec.Unique, Sparse: spec.Sparse}
	for _, k := range spec.Keys {
		doc.Keys = append(doc.Keys, indexKeyJSON{Path: k.Path, Direction: k.Direction})
	}
	return json.Marshal(doc)
}

func decodeIndexSpec(name string, raw []byte) (IndexSpec, error) {
	var doc indexSpecJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return IndexSpec{}, err
	}
	spec := IndexSpec{Name: name, Unique: doc.Unique, Sparse: doc.Sparse}
	for _, k := range doc.Keys {
		spec.Keys = append(spec.Keys, IndexKey{Path: k.Path, Direction: k.Direction})
	}
	return spec, nil
}

// DefaultIndexName builds the conventional default name
// path_dir[_path_dir...] for a set of index keys.
func DefaultIndexName(keys []IndexKey) string {
	name := ""
	for i, k := range keys {
		if i > 0 {
			name += "_"
		}
		dir := "1"
		if k.Direction < 0 {
			dir = "-1"
		}
		name += k.Path + "_" + dir
	}
	return name
}
