// Package domain defines the six belief domains and the numeric conventions
// shared by every part of the simulation.
package domain

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Domain is one of the fixed belief categories.
type Domain uint8

const (
	River Domain = iota
	Flame
	Sky
	War
	Harvest
	Memory
)

// Count is the number of domains. The set never grows at runtime.
const Count = 6

// All lists every domain in canonical order. Anything that consumes random
// draws per domain must iterate in this order.
var All = [Count]Domain{River, Flame, Sky, War, Harvest, Memory}

var names = [Count]string{"river", "flame", "sky", "war", "harvest", "memory"}

// String returns the lowercase domain name.
func (d Domain) String() string {
	if int(d) < Count {
		return names[d]
	}
	return fmt.Sprintf("domain(%d)", uint8(d))
}

// Valid reports whether d is one of the six domains.
func (d Domain) Valid() bool {
	return int(d) < Count
}

// Parse returns the domain with the given name.
func Parse(s string) (Domain, error) {
	for i, n := range names {
		if n == s {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("unknown domain %q", s)
}

// MarshalText encodes the domain by name.
func (d Domain) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid domain %d", uint8(d))
	}
	return []byte(names[d]), nil
}

// UnmarshalText decodes a domain name.
func (d *Domain) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Vector holds one value per domain, indexed by Domain.
// Values are independently clamped to [0,1]; there is no normalization.
type Vector [Count]float64

// Get returns the value for d.
func (v Vector) Get(d Domain) float64 {
	return v[d]
}

// Add shifts the value for d by delta and clamps the result to [0,1].
func (v *Vector) Add(d Domain, delta float64) {
	v[d] = Clamp(v[d]+delta, 0, 1)
}

// MarshalJSON encodes the vector as an object keyed by domain name.
func (v Vector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, Count)
	for _, d := range All {
		m[names[d]] = v[d]
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes an object keyed by domain name. Missing domains are 0.
func (v *Vector) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*v = Vector{}
	for k, val := range m {
		d, err := Parse(k)
		if err != nil {
			return err
		}
		v[d] = val
	}
	return nil
}

// Clamp limits x to [lo, hi].
func Clamp[T constraints.Float](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
