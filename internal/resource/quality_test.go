package resource

import "testing"

func TestTierForScore_Bands(t *testing.T) {
	cases := []struct {
		score float64
		want  Quality
	}{
		{-0.5, QualityScrap},
		{0.0, QualityScrap},
		{0.14, QualityScrap},
		{0.15, QualityCommon},
		{0.40, QualityStandard},
		{0.71, QualityStandard},
		{0.72, QualityQuality},
		{0.77, QualityQuality},
		{0.85, QualitySuperior},
		{0.95, QualityMasterwork},
		{0.99, QualityLegendary},
		{1.0, QualityLegendary},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score, DefaultQualityBands); got != tc.want {
			t.Errorf("TierForScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestClampTier(t *testing.T) {
	if got := ClampTier(-3); got != QualityScrap {
		t.Errorf("ClampTier(-3) = %s", got)
	}
	if got := ClampTier(int(QualityLegendary) + 2); got != QualityLegendary {
		t.Errorf("ClampTier(overflow) = %s", got)
	}
	if got := ClampTier(int(QualityQuality)); got != QualityQuality {
		t.Errorf("ClampTier(identity) = %s", got)
	}
}

func TestQuality_TextRoundTrip(t *testing.T) {
	for q := QualityScrap; q <= QualityLegendary; q++ {
		b, err := q.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", q, err)
		}
		var back Quality
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %q: %v", b, err)
		}
		if back != q {
			t.Fatalf("round trip %s -> %s", q, back)
		}
	}
	var q Quality
	if err := q.UnmarshalText([]byte("mythic")); err == nil {
		t.Fatal("unknown tier accepted")
	}
}

func TestType_ParseAndText(t *testing.T) {
	for _, r := range All {
		got, ok := Parse(r.String())
		if !ok || got != r {
			t.Errorf("Parse(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := Parse("unobtanium"); ok {
		t.Fatal("unknown resource parsed")
	}

	var r Type
	if err := r.UnmarshalText([]byte("rare_metal")); err != nil || r != RareMetal {
		t.Fatalf("UnmarshalText = %v, %v", r, err)
	}
}

func TestValueMultipliers_MonotoneAcrossTiers(t *testing.T) {
	prev := 0.0
	for q := QualityScrap; q <= QualityLegendary; q++ {
		m := ValueMultipliers[q]
		if m <= prev {
			t.Fatalf("value multiplier for %s (%v) not above %v", q, m, prev)
		}
		prev = m
	}
}
