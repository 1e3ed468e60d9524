package compressor

import "fmt"

// PlanDownsample picks the decode-time subsample factor for a source whose
// probed bounds are probeW x probeH and a target of targetW x targetH.
//
// The factor doubles while both halved probe sides still exceed the target,
// then the ceiling ratio of probe to target may raise it further. The result
// is always a power of two because decoders only honour power-of-two hints;
// any residual oversize is removed by an explicit resize after decoding.
func PlanDownsample(probeW, probeH, targetW, targetH int) (Decision, error) {
	if targetW <= 0 || targetH <= 0 {
		return Decision{}, fmt.Errorf("%w: target %dx%d has no area", ErrInvalidInput, targetW, targetH)
	}
	if probeW <= 0 || probeH <= 0 {
		return Decision{}, fmt.Errorf("%w: probe returned %dx%d", ErrCodecFailure, probeW, probeH)
	}

	factor := 1
	if probeH > targetH || probeW > targetW {
		halfH := probeH / 2
		halfW := probeW / 2
		for halfH/factor > targetH && halfW/factor > targetW {
			factor *= 2
		}
	}

	heightRatio := ceilDiv(probeH, targetH)
	widthRatio := ceilDiv(probeW, targetW)
	if ratio := max(heightRatio, widthRatio); ratio > 1 {
		factor = max(factor, floorPowerOfTwo(ratio))
	}

	return Decision{
		Factor:       factor,
		ProbeWidth:   probeW,
		ProbeHeight:  probeH,
		TargetWidth:  targetW,
		TargetHeight: targetH,
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func floorPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
