// Package watermark implements the keyed sign-pattern watermark: a secret
// set of parameter coordinates forced toward key-derived signs, detectable
// only with the key.
package watermark

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"

	domain "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
)

// HKDF info strings keep the coordinate and sign streams independent.
const (
	saltLabel   = "securepol-watermark-v1"
	coordsLabel = "coordinates"
	signsLabel  = "signs"
)

// SignPattern embeds and detects the keyed sign-pattern signal. It is the
// reference Detector implementation; the interface admits other schemes.
type SignPattern struct{}

// NewSignPattern returns the reference embedder/detector.
func NewSignPattern() *SignPattern { return &SignPattern{} }

// pattern derives the watermark carrier from the key: cfg.Coordinates
// distinct parameter positions and a ±1 sign for each.
func pattern(cfg domain.Config, paramDim int) ([]int, []float32, error) {
	if err := cfg.Validate(paramDim); err != nil {
		return nil, nil, err
	}

	coordReader := hkdf.New(sha256.New, cfg.Key, []byte(saltLabel), []byte(coordsLabel))
	signReader := hkdf.New(sha256.New, cfg.Key, []byte(saltLabel), []byte(signsLabel))

	coords := make([]int, 0, cfg.Coordinates)
	seen := make(map[int]struct{}, cfg.Coordinates)
	var buf [8]byte
	for len(coords) < cfg.Coordinates {
		if _, err := io.ReadFull(coordReader, buf[:]); err != nil {
			return nil, nil, fmt.Errorf("watermark key schedule exhausted: %w", err)
		}
		c := int(binary.BigEndian.Uint64(buf[:]) % uint64(paramDim))
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		coords = append(coords, c)
	}

	signs := make([]float32, cfg.Coordinates)
	for i := range signs {
		if _, err := io.ReadFull(signReader, buf[:1]); err != nil {
			return nil, nil, fmt.Errorf("watermark key schedule exhausted: %w", err)
		}
		if buf[0]&1 == 0 {
			signs[i] = -1
		} else {
			signs[i] = 1
		}
	}
	return coords, signs, nil
}

// Embed returns a copy of params carrying the watermark: each selected
// coordinate is forced to its key-derived sign with magnitude at least
// epsilon. The input is not mutated.
func (sp *SignPattern) Embed(params []float32, cfg domain.Config) ([]float32, error) {
	coords, signs, err := pattern(cfg, len(params))
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(params))
	copy(out, params)
	eps := float32(cfg.Epsilon)
	for i, c := range coords {
		mag := float32(math.Abs(float64(out[c])))
		if mag < eps {
			mag = eps
		}
		out[c] = signs[i] * mag
	}
	return out, nil
}

// Detect reports the fraction of watermark coordinates whose sign matches
// the key stream, as a confidence in [0,1]. An unmarked model scores near
// 0.5; an embedded one near 1.
func (sp *SignPattern) Detect(params []float32, cfg domain.Config) (domain.Detection, error) {
	coords, signs, err := pattern(cfg, len(params))
	if err != nil {
		return domain.Detection{}, err
	}

	matches := 0
	for i, c := range coords {
		v := params[c]
		if (v > 0 && signs[i] > 0) || (v < 0 && signs[i] < 0) {
			matches++
		}
	}
	confidence := float64(matches) / float64(len(coords))
	return domain.Detection{
		Confidence: confidence,
		Verdict:    cfg.Classify(confidence),
	}, nil
}

var _ domain.Detector = (*SignPattern)(nil)
