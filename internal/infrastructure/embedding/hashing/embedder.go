// Package hashing is an offline embedder built on signed feature hashing of
// word unigrams and bigrams. It needs no model server and is deterministic.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	defaultDimensions = 384
	termSaturationK   = 1.2
	bigramWeight      = 0.5
)

type Embedder struct {
	dimensions int
}

func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Model encodes the dimensionality so stores built with another size are
// recognised as a different model.
func (e *Embedder) Model() string {
	return fmt.Sprintf("hashing-v1-%d", e.dimensions)
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, e.vector(text))
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) vector(text string) []float32 {
	tokens := tokenize(text)
	termFreq := make(map[string]float64, len(tokens)*2)
	for i, token := range tokens {
		termFreq[token]++
		if i > 0 {
			termFreq[tokens[i-1]+" "+token] += bigramWeight
		}
	}

	acc := make([]float64, e.dimensions)
	for term, tf := range termFreq {
		idx, sign := e.bucket(term)
		acc[idx] += sign * (tf * (termSaturationK + 1.0)) / (tf + termSaturationK)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimensions)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Embedder) bucket(term string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimensions)), sign
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
