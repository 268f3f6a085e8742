package audio

import (
	"encoding/binary"
	"math"
)

// Tone generates ms milliseconds of a sine wave. amplitude is a fraction of
// full scale in [0,1].
func Tone(rate, ms int, freqHz, amplitude float64) []byte {
	n := rate * ms / 1000
	buf := make([]byte, n*BytesPerSample)
	for i := 0; i < n; i++ {
		v := amplitude * math.MaxInt16 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
	}
	return buf
}

// Silence generates ms milliseconds of digital silence.
func Silence(rate, ms int) []byte {
	return make([]byte, rate*ms/1000*BytesPerSample)
}
