package motorsbus

import (
	"math"
	"testing"
)

func degreeRecord(t *testing.T, homingOffset int32, drive DriveMode) *CalibrationRecord {
	t.Helper()
	rec, err := NewCalibrationRecord(
		[]string{"joint"},
		[]JointCalibration{{Mode: ModeDegree, DriveMode: drive, HomingOffset: homingOffset}},
	)
	if err != nil {
		t.Fatalf("NewCalibrationRecord: %v", err)
	}
	return rec
}

func linearRecord(t *testing.T, start, end int32) *CalibrationRecord {
	t.Helper()
	rec, err := NewCalibrationRecord(
		[]string{"joint"},
		[]JointCalibration{{Mode: ModeLinear, StartPos: start, EndPos: end}},
	)
	if err != nil {
		t.Fatalf("NewCalibrationRecord: %v", err)
	}
	return rec
}

func approxEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// S1: forward DEGREE.
func TestForwardDegree(t *testing.T) {
	rec := degreeRecord(t, -2048, NonInverted)

	cases := []struct {
		raw  int32
		want float64
	}{
		{2048, 0.0},
		{3072, 90.0},
		{1024, -90.0},
	}
	for _, tc := range cases {
		got, err := rec.Apply("joint", tc.raw, 4096)
		if err != nil {
			t.Fatalf("Apply(%d): %v", tc.raw, err)
		}
		if !approxEqual(got, tc.want, 1e-9) {
			t.Fatalf("Apply(%d) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

// S2: inverse DEGREE.
func TestRevertDegree(t *testing.T) {
	rec := degreeRecord(t, -2048, NonInverted)
	raw, err := rec.Revert("joint", 45.0, 4096)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if raw != 2560 {
		t.Fatalf("Revert(45.0) = %d, want 2560", raw)
	}
}

// S3: auto-correct whole turn.
func TestAutocorrectWholeTurn(t *testing.T) {
	rec := degreeRecord(t, 0, NonInverted)

	value, corrected, err := rec.ApplyAutocorrect("joint", 5000, 4096)
	if err != nil {
		t.Fatalf("ApplyAutocorrect: %v", err)
	}
	if !corrected {
		t.Fatal("expected corrected=true")
	}
	if !approxEqual(value, 79.453125, 1e-6) {
		t.Fatalf("corrected value = %v, want ~79.45", value)
	}

	joint, _ := rec.get("joint")
	if joint.HomingOffset != -4096 {
		t.Fatalf("HomingOffset = %d, want -4096", joint.HomingOffset)
	}
}

// Property 2: auto-correct is idempotent.
func TestAutocorrectIdempotent(t *testing.T) {
	rec := degreeRecord(t, 0, NonInverted)

	first, corrected1, err := rec.ApplyAutocorrect("joint", 5000, 4096)
	if err != nil {
		t.Fatalf("first ApplyAutocorrect: %v", err)
	}
	if !corrected1 {
		t.Fatal("expected first call to correct")
	}

	second, corrected2, err := rec.ApplyAutocorrect("joint", 5000, 4096)
	if err != nil {
		t.Fatalf("second ApplyAutocorrect: %v", err)
	}
	if corrected2 {
		t.Fatal("second call should not need to correct again")
	}
	if first != second {
		t.Fatalf("values diverged across calls: %v vs %v", first, second)
	}
}

// S4: LINEAR mode.
func TestForwardLinear(t *testing.T) {
	rec := linearRecord(t, 2000, 3000)

	cases := []struct {
		raw  int32
		want float64
	}{
		{2500, 50.0},
		{3100, 110.0},
	}
	for _, tc := range cases {
		got, err := rec.Apply("joint", tc.raw, 4096)
		if err != nil {
			t.Fatalf("Apply(%d): %v", tc.raw, err)
		}
		if !approxEqual(got, tc.want, 1e-9) {
			t.Fatalf("Apply(%d) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	if _, err := rec.Apply("joint", 3200, 4096); err == nil {
		t.Fatal("expected JointOutOfRangeError for raw=3200")
	}
}

// S4 continued: LINEAR auto-correct is an open question, treated as
// unresolvable rather than guessed at (§9).
func TestAutocorrectLinearUnresolvable(t *testing.T) {
	rec := linearRecord(t, 2000, 3000)

	_, corrected, err := rec.ApplyAutocorrect("joint", 3200, 4096)
	if corrected {
		t.Fatal("LINEAR auto-correct must not report success")
	}
	if err != ErrCalibrationUnresolvable {
		t.Fatalf("err = %v, want ErrCalibrationUnresolvable", err)
	}
}

// Invariant 1: revert(apply(v)) ≈ v within tolerance.
func TestRoundTripDegree(t *testing.T) {
	rec := degreeRecord(t, 100, NonInverted)
	raw := int32(3000)

	physical, err := rec.Apply("joint", raw, 4096)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	back, err := rec.Revert("joint", physical, 4096)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if diff := back - raw; diff > 1 || diff < -1 {
		t.Fatalf("round trip drifted by %d steps", diff)
	}
}

func TestRoundTripLinear(t *testing.T) {
	rec := linearRecord(t, 1000, 4000)
	raw := int32(2500)

	physical, err := rec.Apply("joint", raw, 4096)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	back, err := rec.Revert("joint", physical, 4096)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if diff := back - raw; diff > 1 || diff < -1 {
		t.Fatalf("round trip drifted by %d steps", diff)
	}
}

func TestNewCalibrationRecordRejectsDegenerateLinear(t *testing.T) {
	_, err := NewCalibrationRecord(
		[]string{"joint"},
		[]JointCalibration{{Mode: ModeLinear, StartPos: 500, EndPos: 500}},
	)
	if err == nil {
		t.Fatal("expected error for start_pos == end_pos")
	}
}
