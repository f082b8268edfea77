package random

import (
	"math/rand/v2"
)

// Shared deterministic source. Not safe for concurrent use, parallel tests should use Seeded
var PseudoRand = Seeded(0xFF_FF_FF_FF)

// Seeded returns a deterministic generator, used to replay failing scenarios
func Seeded(seed uint64) (r *rand.Rand) {
	return rand.New(rand.NewPCG(seed, 0xAA_BB_CC_DD))
}
