package types

import "testing"

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestClusterValidate(t *testing.T) {
	valid := func() Cluster {
		return Cluster{
			ID: "c1", ProjectID: "42", Name: "prod",
			FallbackMode: FallbackSequential,
			CostBias:     0.5,
		}
	}

	cases := []struct {
		name   string
		mutate func(*Cluster)
		wantOK bool
	}{
		{"defaults", func(c *Cluster) {}, true},
		{"empty mode allowed", func(c *Cluster) { c.FallbackMode = "" }, true},
		{"race mode", func(c *Cluster) { c.FallbackMode = FallbackRace }, true},
		{"missing name", func(c *Cluster) { c.Name = "" }, false},
		{"cost bias below range", func(c *Cluster) { c.CostBias = -0.1 }, false},
		{"cost bias above range", func(c *Cluster) { c.CostBias = 1.5 }, false},
		{"cost bias boundary", func(c *Cluster) { c.CostBias = 1 }, true},
		{"complexity threshold out of range", func(c *Cluster) { c.ComplexityThreshold = floatPtr(2) }, false},
		{"complexity threshold in range", func(c *Cluster) { c.ComplexityThreshold = floatPtr(0.7) }, true},
		{"negative token threshold", func(c *Cluster) { c.TokenThreshold = intPtr(-1) }, false},
		{"semantic cache needs threshold", func(c *Cluster) { c.SemanticCacheEnabled = true }, false},
		{"semantic cache with threshold", func(c *Cluster) {
			c.SemanticCacheEnabled = true
			c.SemanticThreshold = 0.9
		}, true},
		{"unknown fallback mode", func(c *Cluster) { c.FallbackMode = "shuffle" }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantOK && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.wantOK && err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}
