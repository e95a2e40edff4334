package acquire

import (
	"image"
	"image/color"
	"testing"
)

func TestAutoCapture_StreakWithInterruption(t *testing.T) {
	a := NewAutoCapture(4)

	// 3 good, 1 bad, 4 good.
	script := []bool{true, true, true, false, true, true, true, true}
	var fired []int
	for i, good := range script {
		if a.Observe(good, true) {
			fired = append(fired, i+1)
		}
		if i == 2 && a.Count() != 3 {
			t.Fatalf("Expected count 3 after frame 3, got %d", a.Count())
		}
		if i == 3 && a.Count() != 0 {
			t.Fatalf("Expected count reset after unstable frame, got %d", a.Count())
		}
	}

	if len(fired) != 1 || fired[0] != 8 {
		t.Errorf("Expected a single trigger after frame 8, got %v", fired)
	}
}

func TestAutoCapture_LostDetectionResets(t *testing.T) {
	a := NewAutoCapture(4)
	a.Observe(true, true)
	a.Observe(true, true)
	a.Observe(true, false)
	if a.Count() != 0 {
		t.Errorf("Expected count reset on lost detection, got %d", a.Count())
	}
}

func TestAutoCapture_FiresOncePerStreak(t *testing.T) {
	a := NewAutoCapture(2)
	fires := 0
	for i := 0; i < 10; i++ {
		if a.Observe(true, true) {
			fires++
		}
	}
	if fires != 1 {
		t.Errorf("Expected one trigger per sustained streak, got %d", fires)
	}

	a.Reset()
	if a.Triggered() || a.Count() != 0 {
		t.Error("Expected reset to re-arm the counter")
	}
	a.Observe(true, true)
	if !a.Observe(true, true) {
		t.Error("Expected trigger after reset and a new streak")
	}
}

func TestAutoCapture_DefaultRequired(t *testing.T) {
	if NewAutoCapture(0).Required() != DefaultStableFrames {
		t.Errorf("Expected default streak of %d", DefaultStableFrames)
	}
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestMotionDetector(t *testing.T) {
	gray := solid(320, 180, color.RGBA{120, 120, 120, 255})
	slightlyOff := solid(320, 180, color.RGBA{130, 125, 118, 255})
	white := solid(320, 180, color.RGBA{250, 250, 250, 255})

	m := NewMotionDetector(0, 0)
	if m.Stable(gray) {
		t.Error("Expected first frame to be unstable")
	}
	if !m.Stable(gray) {
		t.Error("Expected identical frame to be stable")
	}
	if !m.Stable(slightlyOff) {
		t.Error("Expected small differences below threshold to be stable")
	}
	if m.Stable(white) {
		t.Error("Expected a large change to be unstable")
	}
	if !m.Stable(white) {
		t.Error("Expected comparison against the latest sample only")
	}

	m.Reset()
	if m.Stable(white) {
		t.Error("Expected first frame after reset to be unstable")
	}
}

func TestMotionDetector_SmallMovingPatch(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 160, 90))
	moved := image.NewRGBA(image.Rect(0, 0, 160, 90))
	// A 4x4 patch changes: 16 pixels, of which only every 4th in row order is sampled.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			moved.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	m := NewMotionDetector(50, 10)
	m.Stable(base)
	if !m.Stable(moved) {
		t.Error("Expected a tiny change to stay below the change limit")
	}
}
