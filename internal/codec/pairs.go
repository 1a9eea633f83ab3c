// Package codec converts structured request data into the wire forms the
// transport needs: header lines, a single cookie string and a bounded
// response sink.
package codec

// Pair is one key/value entry of a header or cookie set.
type Pair struct {
	Key   string
	Value string
}

// Pairs is an ordered set of key/value entries. Order is the iteration order
// used by the encoders, so callers control the wire order.
type Pairs []Pair

// NewPairs builds Pairs from alternating keys and values. A trailing key
// without a value is paired with the empty string.
func NewPairs(kv ...string) Pairs {
	out := make(Pairs, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		out = out.Set(kv[i], value)
	}
	return out
}

// Set replaces the value of an existing key in place or appends a new entry.
func (p Pairs) Set(key, value string) Pairs {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Pair{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (p Pairs) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (p Pairs) Len() int {
	return len(p)
}

// Clone returns an independent copy.
func (p Pairs) Clone() Pairs {
	if p == nil {
		return nil
	}
	out := make(Pairs, len(p))
	copy(out, p)
	return out
}
