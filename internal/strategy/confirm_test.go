package strategy

import (
	"testing"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

func TestRejectionCandle(t *testing.T) {
	sig := rejectionCandle{wickBodyRatio: 2.0}

	cases := []struct {
		name string
		bar  domain.Bar
		dir  domain.Direction
		want bool
	}{
		{
			name: "hammer confirms long",
			bar:  domain.Bar{Open: 4472, High: 4473, Low: 4465, Close: 4471, Volume: 100},
			dir:  domain.Long,
			want: true,
		},
		{
			name: "hammer does not confirm short",
			bar:  domain.Bar{Open: 4472, High: 4473, Low: 4465, Close: 4471, Volume: 100},
			dir:  domain.Short,
			want: false,
		},
		{
			name: "shooting star confirms short",
			bar:  domain.Bar{Open: 4528, High: 4536, Low: 4527.5, Close: 4527.75, Volume: 100},
			dir:  domain.Short,
			want: true,
		},
		{
			name: "full body bar confirms nothing",
			bar:  domain.Bar{Open: 4470, High: 4476.25, Low: 4469.75, Close: 4476, Volume: 100},
			dir:  domain.Long,
			want: false,
		},
		{
			name: "doji with dominant lower wick confirms long",
			bar:  domain.Bar{Open: 4470, High: 4471, Low: 4464, Close: 4470.1, Volume: 100},
			dir:  domain.Long,
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := Window{Bars: []domain.Bar{tc.bar}, Direction: tc.dir, TickSize: 0.25}
			if got := sig.Confirm(w); got != tc.want {
				t.Fatalf("Confirm() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEngulfing(t *testing.T) {
	prev := domain.Bar{Open: 4470, High: 4471, Low: 4467, Close: 4468}
	cur := domain.Bar{Open: 4467.5, High: 4472, Low: 4466.5, Close: 4471}

	w := Window{Bars: []domain.Bar{prev, cur}, Direction: domain.Long, TickSize: 0.25}
	if !(engulfing{}).Confirm(w) {
		t.Fatal("bullish engulfing should confirm a long fade")
	}

	w.Direction = domain.Short
	if (engulfing{}).Confirm(w) {
		t.Fatal("bullish engulfing must not confirm a short fade")
	}

	// Single bar: nothing to engulf.
	w = Window{Bars: []domain.Bar{cur}, Direction: domain.Long, TickSize: 0.25}
	if (engulfing{}).Confirm(w) {
		t.Fatal("engulfing needs a previous bar")
	}
}

func TestVolumeClimax(t *testing.T) {
	sig := volumeClimax{mult: 2.0}
	spike := domain.Bar{Open: 4470, High: 4471, Low: 4466, Close: 4466.5, Volume: 900}
	reversal := domain.Bar{Open: 4466.5, High: 4470, Low: 4466, Close: 4469.5, Volume: 300}

	w := Window{Bars: []domain.Bar{spike, reversal}, Direction: domain.Long, IBBarVolume: 400, TickSize: 0.25}
	if !sig.Confirm(w) {
		t.Fatal("volume spike then bullish reversal should confirm a long fade")
	}

	w.IBBarVolume = 0
	if sig.Confirm(w) {
		t.Fatal("no baseline volume, no climax")
	}

	w.IBBarVolume = 400
	w.Bars[0].Volume = 500 // below 2x baseline
	if sig.Confirm(w) {
		t.Fatal("sub-threshold spike must not confirm")
	}
}

func TestVolumeDivergence(t *testing.T) {
	prev := domain.Bar{Open: 4470, High: 4471, Low: 4466, Close: 4467, Volume: 800}
	cur := domain.Bar{Open: 4467, High: 4468, Low: 4465, Close: 4466, Volume: 450}

	w := Window{Bars: []domain.Bar{prev, cur}, Direction: domain.Long, TickSize: 0.25}
	if !(volumeDivergence{}).Confirm(w) {
		t.Fatal("fresh low on falling volume should confirm a long fade")
	}

	w.Bars[1].Volume = 900
	if (volumeDivergence{}).Confirm(w) {
		t.Fatal("fresh low on rising volume is continuation, not divergence")
	}
}

func TestPOCStall(t *testing.T) {
	sig := pocStall{ticks: 4}
	a := domain.Bar{Open: 4494, High: 4496, Low: 4493, Close: 4494.75}
	b := domain.Bar{Open: 4494.75, High: 4495.5, Low: 4494, Close: 4495.25}

	w := Window{Bars: []domain.Bar{a, b}, Direction: domain.Long, POC: 4495, TickSize: 0.25}
	if !sig.Confirm(w) {
		t.Fatal("two closes inside the POC band should confirm")
	}

	w.Bars[0].Close = 4480
	if sig.Confirm(w) {
		t.Fatal("one close far from POC breaks the stall")
	}

	w.POC = 0
	if sig.Confirm(w) {
		t.Fatal("no POC yet, no stall")
	}
}
