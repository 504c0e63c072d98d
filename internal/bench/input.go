package bench

import (
	"math/rand"

	"github.com/23skdu/longbow-ortbench/internal/engine"
)

// GenerateInput returns a tensor of shape filled with independent standard
// normal values drawn from a PRNG seeded with seed.
func GenerateInput(shape []int64, seed int64) engine.Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	rng := rand.New(rand.NewSource(seed))
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return engine.Tensor{Shape: append([]int64(nil), shape...), Data: data}
}
