package simbus

import (
	"testing"

	"github.com/kstaniek/go-vpw-gateway/internal/dash"
)

func TestEngineFrames(t *testing.T) {
	e := NewEngine()
	kinds := []dash.Kind{dash.KindRPM, dash.KindGear, dash.KindTemp, dash.KindSpeed}
	gears := map[int]bool{}
	for i := 0; i < 800; i++ {
		f := e.Next()
		if !f.CheckCRC() {
			t.Fatalf("frame %d: bad crc %s", i, f)
		}
		r, ok := dash.Decode(f)
		if !ok {
			t.Fatalf("frame %d not recognized: %s", i, f)
		}
		if r.Kind != kinds[i%4] {
			t.Fatalf("frame %d: kind %v want %v", i, r.Kind, kinds[i%4])
		}
		switch r.Kind {
		case dash.KindRPM:
			if r.Value < idleRPM || r.Value > redRPM+150 {
				t.Fatalf("rpm out of range: %d", r.Value)
			}
		case dash.KindGear:
			if r.Value < 0 || r.Value > 5 {
				t.Fatalf("gear out of range: %d", r.Value)
			}
			gears[r.Value] = true
		case dash.KindTemp:
			if r.Value != 90 {
				t.Fatalf("temp %d", r.Value)
			}
		case dash.KindSpeed:
			if r.Value < 0 || r.Value > 5*(redRPM+150)/150 {
				t.Fatalf("speed out of range: %d", r.Value)
			}
		}
	}
	if len(gears) < 3 {
		t.Fatalf("engine never shifted: %v", gears)
	}
}
