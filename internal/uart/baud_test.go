package uart

import (
	"math"
	"testing"
)

func TestEstimateBaud(t *testing.T) {
	rx := EdgeSequence{Edges: []int64{0, 100, 300, 400, 700}}
	tx := EdgeSequence{Edges: []int64{50, 250}}

	est := EstimateBaud(960_000, DefaultOptions(), rx, tx)

	if !est.Valid {
		t.Fatal("Valid = false, want true")
	}
	if est.BitLength != 100 {
		t.Errorf("BitLength = %v, want 100", est.BitLength)
	}
	if est.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", est.BaudRate)
	}
	if est.ExactBaudRate != 9600 {
		t.Errorf("ExactBaudRate = %v, want 9600", est.ExactBaudRate)
	}
	if est.StandardRate != 9600 {
		t.Errorf("StandardRate = %d, want 9600", est.StandardRate)
	}
	if est.Jitter != 0 {
		t.Errorf("Jitter = %v, want 0", est.Jitter)
	}
	if est.LowConfidence {
		t.Error("LowConfidence = true, want false")
	}
}

func TestEstimateBaud_NoEdges(t *testing.T) {
	est := EstimateBaud(1_000_000, DefaultOptions(), EdgeSequence{}, EdgeSequence{Edges: []int64{42}})

	if est.Valid {
		t.Error("Valid = true, want false")
	}
	if est.BitLength != 0 || est.BaudRate != 0 || est.ExactBaudRate != 0 {
		t.Errorf("est = %+v, want zero timing", est)
	}
}

func TestEstimateBaud_BelowMinimum(t *testing.T) {
	est := EstimateBaud(1_000_000, DefaultOptions(), EdgeSequence{Edges: []int64{10, 11, 30}})

	if est.Valid {
		t.Error("Valid = true, want false")
	}
	if est.BitLength != 1 {
		t.Errorf("BitLength = %v, want 1 (best effort)", est.BitLength)
	}
	if !est.LowConfidence {
		t.Error("LowConfidence = false, want true")
	}
	if est.BaudRate != 0 {
		t.Errorf("BaudRate = %d, want 0", est.BaudRate)
	}
}

func TestEstimateBaud_LowConfidence(t *testing.T) {
	est := EstimateBaud(96_000, DefaultOptions(), EdgeSequence{Edges: []int64{0, 10, 30, 40}})

	if !est.Valid {
		t.Fatal("Valid = false, want true")
	}
	if !est.LowConfidence {
		t.Error("LowConfidence = false, want true")
	}
	if est.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", est.BaudRate)
	}
}

func TestEstimateBaud_Jitter(t *testing.T) {
	// Distances 100, 205, 95: residuals against 95 are 0.05, 0.16, 0.
	est := EstimateBaud(1_000_000, DefaultOptions(), EdgeSequence{Edges: []int64{0, 100, 305, 400}})

	if est.BitLength != 95 {
		t.Fatalf("BitLength = %v, want 95", est.BitLength)
	}
	if est.Jitter <= 0 || est.Jitter > 0.2 {
		t.Errorf("Jitter = %v, want within (0, 0.2]", est.Jitter)
	}
}

func TestNearestStandardRate(t *testing.T) {
	tests := []struct {
		exact float64
		want  int
	}{
		{9600, 9600},
		{9615.38, 9600},
		{115384.6, 115200},
		{250000, 250000},
		{12000, 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := nearestStandardRate(tt.exact); got != tt.want {
			t.Errorf("nearestStandardRate(%v) = %d, want %d", tt.exact, got, tt.want)
		}
	}
}
