package value

// Pair is one field of an ordered Document.
type Pair struct {
	Key   string
	Value Value
}

// Document is an ordered field-name-to-value mapping, the unit of
// storage and wire exchange. Field order is preserved on construction,
// Set, and iteration; lookups are O(1) via an index.
type Document struct {
	pairs []Pair
	index map[string]int
}

// NewDocument builds an empty, ready-to-use Document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// DocumentFromPairs builds a Document preserving the given field order.
// Later duplicate keys overwrite earlier ones in place.
func DocumentFromPairs(pairs ...Pair) *Document {
	d := NewDocument()
	for _, p := range pairs {
		d.Set(p.Key, p.Value)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.pairs)
}

// Get returns the value at key, or the zero Value (IsMissing() == true) if
// absent.
func (d *Document) Get(key string) Value {
	if d == nil {
		return Value{}
	}
	if i, ok := d.index[key]; ok {
		return d.pairs[i].Value
	}
	return Value{}
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[key]
	return ok
}

// Set inserts or overwrites key, preserving the original position on
// overwrite and appending on insert.
func (d *Document) Set(key string, v Value) {
	if i, ok := d.index[key]; ok {
		d.pairs[i].Value = v
		return
	}
	d.index[key] = len(d.pairs)
	d.pairs = append(d.pairs, Pair{Key: key, Value: v})
}

// Delete removes key if present, shifting later fields to fill the gap and
// keeping the index consistent.
func (d *Document) Delete(key string) {
	i, ok := d.index[key]
	if !ok {
		return
	}
	d.pairs = append(d.pairs[:i], d.pairs[i+1:]...)
	delete(d.index, key)
	for k, idx := range d.index {
		if idx > i {
			d.index[k] = idx - 1
		}
	}
}

// Keys returns the field names in document order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.pairs))
	for i, p := range d.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Pairs returns the fields in document order. The returned slice must not
// be mutated by the caller.
func (d *Document) Pairs() []Pair {
	if d == nil {
		return nil
	}
	return d.pairs
}

// Range calls fn for every field in order, stopping early if fn returns
// false.
func (d *Document) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, p := range d.pairs {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Clone returns a shallow copy whose top-level field order/index is
// independent of the original (nested Document/Array values are shared).
func (d *Document) Clone() *Document {
	c := NewDocument()
	d.Range(func(k string, v Value) bool {
		c.Set(k, v)
		return true
	})
	return c
}

// GetPath resolves a dotted field path ("a.b.c") against the document,
// descending into nested documents and, for numeric path segments, arrays.
// Returns the zero Value (missing) if any segment is absent or the wrong
// shape.
func (d *Document) GetPath(path string) Value {
	return getPath(FromDocument(d), splitPath(path))
}

func getPath(v Value, segs []string) Value {
	if len(segs) == 0 {
		return v
	}
	seg := segs[0]
	rest := segs[1:]
	switch v.Kind {
	case KindDocument:
		return getPath(v.Doc.Get(seg), rest)
	case KindArray:
		if idx, ok := parseArrayIndex(seg); ok {
			if idx < 0 || idx >= len(v.Arr) {
				return Value{}
			}
			return getPath(v.Arr[idx], rest)
		}
		// Implicit array traversal: collect the path from every element.
		out := make([]Value, 0, len(v.Arr))
		for _, elem := range v.Arr {
			sub := getPath(elem, segs)
			if !sub.IsMissing() {
				out = append(out, sub)
			}
		}
		if len(out) == 0 {
			return Value{}
		}
		return FromArray(out)
	default:
		return Value{}
	}
}

func parseArrayIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// SetPath sets a dotted path, creating intermediate Documents as needed.
func (d *Document) SetPath(path string, v Value) {
	segs := splitPath(path)
	setPath(d, segs, v)
}

func setPath(d *Document, segs []string, v Value) {
	if len(segs) == 1 {
		d.Set(segs[0], v)
		return
	}
	child := d.Get(segs[0])
	var childDoc *Document
	if child.Kind == KindDocument {
		childDoc = child.Doc
	} else {
		childDoc = NewDocument()
	}
	setPath(childDoc, segs[1:], v)
	d.Set(segs[0], FromDocument(childDoc))
}

// DeletePath removes a dotted path if present.
func (d *Document) DeletePath(path string) {
	segs := splitPath(path)
	deletePath(d, segs)
}

func deletePath(d *Document, segs []string) {
	if d == nil {
		return
	}
	if len(segs) == 1 {
		d.Delete(segs[0])
		return
	}
	child := d.Get(segs[0])
	if child.Kind != KindDocument {
		return
	}
	deletePath(child.Doc, segs[1:])
}
