package prompt

import "math/rand/v2"

// Sampler picks up to n lines from a persona's lore or bio.
type Sampler interface {
	Sample(lines []string, n int) []string
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(lines []string, n int) []string

func (f SamplerFunc) Sample(lines []string, n int) []string { return f(lines, n) }

// RandomSampler shuffles a copy of the lines and keeps the first n.
type RandomSampler struct{}

func (RandomSampler) Sample(lines []string, n int) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// FirstN keeps input order. Tests pin selection with it.
var FirstN = SamplerFunc(func(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
})
