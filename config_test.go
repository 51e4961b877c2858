package ridbag

import "testing"

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	bad := []Config{
		{GrowThreshold: 5, ShrinkThreshold: 5, PageCapacity: 16},
		{GrowThreshold: 5, ShrinkThreshold: -1, PageCapacity: 3},
		{GrowThreshold: 5, ShrinkThreshold: -1, PageCapacity: 16, CachePages: -1},
		{GrowThreshold: 5, ShrinkThreshold: -1, PageCapacity: 16, Compression: 7},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, wanted error", c)
		}
	}
	// disabled growth allows any shrink threshold
	if err := (Config{GrowThreshold: -1, ShrinkThreshold: 10, PageCapacity: 4}).Validate(); err != nil {
		t.Errorf("Validate() = %v, wanted nil", err)
	}
}

func TestConfigThresholds(t *testing.T) {
	c := Config{GrowThreshold: 7, ShrinkThreshold: 4}
	for _, tt := range []struct {
		n            int
		grow, shrink bool
	}{
		{0, false, true},
		{4, false, true},
		{5, false, false},
		{6, false, false},
		{7, true, false},
		{100, true, false},
	} {
		if got := c.shouldGrow(tt.n); got != tt.grow {
			t.Errorf("shouldGrow(%d) = %v, wanted %v", tt.n, got, tt.grow)
		}
		if got := c.shouldShrink(tt.n); got != tt.shrink {
			t.Errorf("shouldShrink(%d) = %v, wanted %v", tt.n, got, tt.shrink)
		}
	}
	off := Config{GrowThreshold: -1, ShrinkThreshold: -1}
	if off.shouldGrow(1000) || off.shouldShrink(0) {
		t.Errorf("negative thresholds should disable conversion")
	}

	d := Config{GrowThreshold: 3}.withDefaults()
	if d.PageCapacity != DefaultPageCapacity || d.CachePages != DefaultCachePages || d.GrowThreshold != 3 {
		t.Errorf("withDefaults() = %+v", d)
	}
}

func TestCompressionString(t *testing.T) {
	for c, want := range map[Compression]string{CompressionNone: "none", CompressionLZ4: "lz4", CompressionZstd: "zstd", 9: "invalid compression 9"} {
		if got := c.String(); got != want {
			t.Errorf("String() = %q, wanted %q", got, want)
		}
	}
}
