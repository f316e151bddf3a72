package knowledge

import (
	"encoding/json"
	"math"

	"github.com/viterin/vek/vek32"
)

// dims is the width of the hashed-character embedding.
const dims = 128

// embed folds the character codes of s into a fixed-width vector. It is a
// deterministic placeholder, not a semantic model.
func embed(s string) []float32 {
	v := make([]float32, dims)
	i := 0
	for _, r := range s {
		v[i%dims] += float32(r)
		i++
	}
	vek32.MulNumber_Inplace(v, 1.0/1000)
	return v
}

// embedEvent embeds the event metadata as JSON, falling back to the event
// type when metadata is empty.
func embedEvent(ev Event) []float32 {
	if len(ev.Metadata) == 0 {
		return embed(string(ev.Type))
	}
	b, err := json.Marshal(ev.Metadata)
	if err != nil {
		return embed(string(ev.Type))
	}
	return embed(string(b))
}

// cosine returns the cosine similarity of a and b, or 0 when either is empty
// or they differ in length.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na := vek32.Dot(a, a)
	nb := vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
}
