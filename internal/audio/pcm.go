package audio

const bytesPerSample = 2 // signed 16-bit little-endian

// Format describes an interleaved s16le PCM stream
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

// FrameSize returns the number of bytes in one interleaved frame
func (f Format) FrameSize() int {
	return f.Channels * bytesPerSample
}

// Reduced returns the format a sink must run at to play PCM decimated by factor
func (f Format) Reduced(factor int) Format {
	return Format{SampleRate: f.SampleRate / factor, Channels: f.Channels}
}

// Decimate drops frames from the first n bytes of buf in place, keeping the last frame
// of every complete group of factor frames, and returns the new valid length.
//
// Only buf[:n] is read, so n must be the decoder's returned count rather than the
// buffer capacity. The result is n/factor whenever n is a multiple of frameSize*factor.
// A factor of 1 leaves buf untouched and returns n.
func Decimate(buf []byte, n, factor, channels int) int {
	if factor < 1 {
		panic("audio: decimation factor must be positive")
	}
	if n > len(buf) {
		n = len(buf)
	}
	if factor == 1 {
		return n
	}

	frameSize := channels * bytesPerSample
	groups := n / (frameSize * factor)
	for g := 0; g < groups; g++ {
		src := (g*factor + factor - 1) * frameSize
		copy(buf[g*frameSize:(g+1)*frameSize], buf[src:src+frameSize])
	}
	return groups * frameSize
}
