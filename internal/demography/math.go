package demography

import "math"

func sqrt(x float64) float64 { return math.Sqrt(x) }

func sqrtN(n int) float64 { return math.Sqrt(float64(n)) }

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
