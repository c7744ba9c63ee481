package audio

import (
	"math"
	"testing"
)

func TestDownmixPlanarMatchesInterleaved(t *testing.T) {
	interleaved := Frame{
		Format: Format{SampleRate: 48000, Channels: 2, Kind: Float32},
		Frames: 3,
		F32:    []float32{0, 1, 0.5, 0.5, 1, 0},
	}
	planar := Frame{
		Format: Format{SampleRate: 48000, Channels: 2, Kind: Float32, Planar: true},
		Frames: 3,
		F32:    []float32{0, 0.5, 1, 1, 0.5, 0},
	}

	a := Downmix(nil, interleaved)
	b := Downmix(nil, planar)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("frame %d: interleaved %f, planar %f", i, a[i], b[i])
		}
		if a[i] != 0.5 {
			t.Fatalf("frame %d: expected 0.5, got %f", i, a[i])
		}
	}
}

func TestDownmixReusesDestination(t *testing.T) {
	dst := make([]float32, 0, 16)
	f := Frame{
		Format: Format{SampleRate: 16000, Channels: 1, Kind: Int16},
		Frames: 2,
		I16:    []int16{16384, -16384},
	}
	got := Downmix(dst, f)
	if &got[0] != &dst[:1][0] {
		t.Fatal("expected destination buffer to be reused")
	}
	if got[0] != 0.5 || got[1] != -0.5 {
		t.Fatalf("unexpected samples %v", got)
	}
}

func TestRMSAcrossSampleKinds(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  float64
	}{
		{
			name:  "float32 constant",
			frame: Frame{Format: Format{Channels: 1, Kind: Float32}, Frames: 4, F32: []float32{0.5, -0.5, 0.5, -0.5}},
			want:  0.5,
		},
		{
			name:  "int16 half scale",
			frame: Frame{Format: Format{Channels: 2, Kind: Int16}, Frames: 2, I16: []int16{16384, -16384, 16384, -16384}},
			want:  0.5,
		},
		{
			name:  "int32 quarter scale",
			frame: Frame{Format: Format{Channels: 1, Kind: Int32}, Frames: 2, I32: []int32{536870912, -536870912}},
			want:  0.25,
		},
		{
			name:  "empty",
			frame: Frame{Format: Format{Channels: 1, Kind: Float32}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.frame)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestLevelDB(t *testing.T) {
	if got := LevelDB(0); got != SilenceFloorDB {
		t.Errorf("expected floor for silence, got %f", got)
	}
	if got := LevelDB(1); got != 0 {
		t.Errorf("expected 0 dBFS at full scale, got %f", got)
	}
	if got := LevelDB(0.1); math.Abs(got+20) > 1e-9 {
		t.Errorf("expected -20 dBFS, got %f", got)
	}
}

func TestFrameCloneAndValidate(t *testing.T) {
	src := []int16{1, 2, 3, 4}
	f := Frame{Format: Format{SampleRate: 8000, Channels: 2, Kind: Int16}, Frames: 2, I16: src}
	if err := f.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := f.Clone()
	src[0] = 99
	if c.I16[0] != 1 {
		t.Fatal("clone shares backing array with the source frame")
	}

	bad := Frame{Format: Format{Channels: 2, Kind: Int16}, Frames: 3, I16: src}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for mismatched sample count")
	}
}

func TestToPCM16Clamps(t *testing.T) {
	if got := ToPCM16(2); got != 32767 {
		t.Errorf("expected clamp to 32767, got %d", got)
	}
	if got := ToPCM16(-2); got != -32768 {
		t.Errorf("expected clamp to -32768, got %d", got)
	}
	if got := ToPCM16(0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
