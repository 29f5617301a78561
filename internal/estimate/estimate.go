// Package estimate predicts the size reduction a HEVC re-encode can achieve.
//
// Two methods back the admission pipeline at different stages: a static
// codec ratio table usable before any download, and a measured result from a
// short trial encode of a mid-file segment once the payload is local.
package estimate

// ratioByCodec maps a source codec to the expected output/input size ratio
// when re-encoded to HEVC at comparable quality. Codecs close to or beyond
// HEVC efficiency carry ratios near 1 so the savings gate rejects them.
var ratioByCodec = map[string]float64{
	"mpeg2video": 0.30,
	"msmpeg4v3":  0.35,
	"mpeg4":      0.35,
	"wmv3":       0.35,
	"vc1":        0.35,
	"h264":       0.40,
	"vp8":        0.45,
	"vp9":        0.85,
	"hevc":       0.95,
	"av1":        1.00,
}

// defaultRatio is the conservative assumption for codecs not in the table.
const defaultRatio = 0.50

// Prediction is the outcome of a static estimate.
type Prediction struct {
	NewSize int64
	Percent float64
}

// Static predicts the post-encode size for a file of the given codec and size
// using the fixed ratio table.
func Static(codec string, size int64) Prediction {
	ratio, ok := ratioByCodec[codec]
	if !ok {
		ratio = defaultRatio
	}
	newSize := int64(float64(size) * ratio)
	return Prediction{
		NewSize: newSize,
		Percent: (1 - ratio) * 100,
	}
}

// Trial is the measured outcome of a segment encode.
type Trial struct {
	OrigKbps int64
	NewKbps  int64
	Percent  float64
}

// NewTrial derives the savings percent from measured bitrates.
func NewTrial(origKbps, newKbps int64) Trial {
	trial := Trial{OrigKbps: origKbps, NewKbps: newKbps}
	if origKbps > 0 {
		trial.Percent = (1 - float64(newKbps)/float64(origKbps)) * 100
	}
	return trial
}
