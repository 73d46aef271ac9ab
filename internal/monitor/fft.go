package monitor

import "math"

// fft computes an in-place iterative radix-2 Cooley-Tukey transform over the
// complex signal (re, im). len(re) must equal len(im) and be a power of two.
func fft(re, im []float64) {
	n := len(re)

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		stepRe, stepIm := math.Cos(ang), math.Sin(ang)
		for start := 0; start < n; start += length {
			wRe, wIm := 1.0, 0.0
			for k := 0; k < length/2; k++ {
				i, j := start+k, start+k+length/2
				tRe := re[j]*wRe - im[j]*wIm
				tIm := re[j]*wIm + im[j]*wRe
				re[j] = re[i] - tRe
				im[j] = im[i] - tIm
				re[i] += tRe
				im[i] += tIm
				wRe, wIm = wRe*stepRe-wIm*stepIm, wRe*stepIm+wIm*stepRe
			}
		}
	}
}
