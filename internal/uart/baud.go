package uart

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// standardRates are the common UART rates a measured rate is snapped to for display.
var standardRates = []int{
	300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 57600,
	76800, 115200, 230400, 250000, 460800, 500000, 921600, 1000000,
	1500000, 2000000, 3000000,
}

// standardRateTolerance is the relative distance within which a rate is
// reported as a standard one.
const standardRateTolerance = 0.03

// BaudEstimate is the bit timing recovered from the data lines.
type BaudEstimate struct {
	// BitLength is the unit bit period in samples. It is set whenever any
	// inter-edge distance was observed, even if the estimate is not Valid,
	// so sample points can still be positioned on a best-effort basis.
	BitLength float64 `json:"bit_length"`

	// BaudRate is ExactBaudRate rounded to the nearest integer (0 when not Valid)
	BaudRate int `json:"baud_rate"`

	// ExactBaudRate is sample rate / BitLength (0 when not Valid)
	ExactBaudRate float64 `json:"exact_baud_rate"`

	// StandardRate is the nearest conventional rate within 3%, or 0
	StandardRate int `json:"standard_rate,omitempty"`

	// Jitter is the standard deviation of inter-edge distances from the
	// nearest whole multiple of BitLength, in bit periods.
	Jitter float64 `json:"jitter"`

	// Valid is false when no usable timing could be derived; callers must
	// then report the baud rate as unavailable.
	Valid bool `json:"valid"`

	// LowConfidence is set when a bit spans fewer samples than the
	// configured reliability threshold.
	LowConfidence bool `json:"low_confidence"`
}

// EstimateBaud derives the unit bit period from the smallest inter-edge
// distance over all given sequences. Start bits and isolated data bits make
// a single-bit interval appear in any normal traffic; payloads without one
// (e.g. repeated 0x00) yield a multiple of the true period.
func EstimateBaud(sampleRate int, opts Options, seqs ...EdgeSequence) BaudEstimate {
	var distances []float64
	for _, seq := range seqs {
		for i := 1; i < len(seq.Edges); i++ {
			distances = append(distances, float64(seq.Edges[i]-seq.Edges[i-1]))
		}
	}

	est := BaudEstimate{}
	if len(distances) == 0 {
		return est
	}

	unit := distances[0]
	for _, d := range distances[1:] {
		if d < unit {
			unit = d
		}
	}
	est.BitLength = unit
	est.Jitter = jitter(distances, unit)
	est.LowConfidence = unit < opts.LowConfidenceBitLength

	if unit < opts.MinBitLength || sampleRate <= 0 {
		return est
	}

	est.Valid = true
	est.ExactBaudRate = float64(sampleRate) / unit
	est.BaudRate = int(math.Round(est.ExactBaudRate))
	est.StandardRate = nearestStandardRate(est.ExactBaudRate)
	return est
}

// jitter returns the spread of each distance's residual against the nearest
// whole number of unit periods.
func jitter(distances []float64, unit float64) float64 {
	if len(distances) < 2 {
		return 0
	}
	residuals := make([]float64, len(distances))
	for i, d := range distances {
		cells := d / unit
		residuals[i] = cells - math.Round(cells)
	}
	return stat.StdDev(residuals, nil)
}

func nearestStandardRate(exact float64) int {
	best, bestErr := 0, math.Inf(1)
	for _, r := range standardRates {
		relErr := math.Abs(exact-float64(r)) / float64(r)
		if relErr < bestErr {
			best, bestErr = r, relErr
		}
	}
	if bestErr > standardRateTolerance {
		return 0
	}
	return best
}
