package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/opsboard/internal/domain"
)

func testCatalog() *Catalog {
	return New(map[string]domain.Meta{
		"momentum":         {Name: "Momentum", Subtitle: "12-1 cross-sectional"},
		"momentum_intl":    {Name: "Intl Momentum", Subtitle: "ex-US"},
		"risk_parity":      {Name: "Risk Parity", Subtitle: "vol targeted"},
		"ibkr_risk_parity": {Name: "RP (IBKR)", Subtitle: "automated"},
	}, []string{"ibkr_"})
}

func TestLookup_Exact(t *testing.T) {
	c := testCatalog()
	m, ok := c.Lookup("Risk_Parity")
	assert.True(t, ok)
	assert.Equal(t, "Risk Parity", m.Name)
}

func TestLookup_SubstringPrefersLongest(t *testing.T) {
	c := testCatalog()
	// contains both "momentum" and "momentum_intl"
	m, ok := c.Lookup("momentum_intl_v2")
	assert.True(t, ok)
	assert.Equal(t, "Intl Momentum", m.Name)

	// contains both "risk_parity" and "ibkr_risk_parity"
	m, ok = c.Lookup("ibkr_risk_parity_paper")
	assert.True(t, ok)
	assert.Equal(t, "RP (IBKR)", m.Name)
}

func TestLookup_ContainedByKey(t *testing.T) {
	c := testCatalog()
	m, ok := c.Lookup("intl")
	assert.True(t, ok)
	assert.Equal(t, "Intl Momentum", m.Name)
}

func TestLookup_EqualLengthTieIsLexicographic(t *testing.T) {
	c := New(map[string]domain.Meta{
		"alpha_b": {Name: "B"},
		"alpha_a": {Name: "A"},
	}, nil)
	for i := 0; i < 10; i++ {
		m, ok := c.Lookup("alpha")
		assert.True(t, ok)
		assert.Equal(t, "A", m.Name)
	}
}

func TestLookup_UnknownFallsBackToDerivedLabel(t *testing.T) {
	c := testCatalog()
	m, ok := c.Lookup("carry_fx-g10")
	assert.False(t, ok)
	assert.Equal(t, "Carry Fx G10", m.Name)
	assert.Equal(t, "Carry Fx G10", c.Label("carry_fx-g10"))

	m, ok = c.Lookup("  ")
	assert.False(t, ok)
	assert.Equal(t, "unknown", m.Name)
}

func TestBookOf(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, domain.BookAutomated, c.BookOf("ibkr_risk_parity"))
	assert.Equal(t, domain.BookAutomated, c.BookOf("IBKR_momentum"))
	assert.Equal(t, domain.BookManual, c.BookOf("risk_parity"))
	assert.Equal(t, domain.BookManual, c.BookOf(""))
}

func TestDeriveLabel(t *testing.T) {
	assert.Equal(t, "unknown", DeriveLabel(""))
	assert.Equal(t, "Trend Following", DeriveLabel("trend_following"))
	assert.Equal(t, "___", DeriveLabel("___"))
}

func TestNew_CaseFoldedDuplicateKeysAreDeterministic(t *testing.T) {
	entries := map[string]domain.Meta{
		"Momentum":  {Name: "Upper"},
		"momentum":  {Name: "Lower"},
		"MOMENTUM ": {Name: "Shout"},
	}
	for i := 0; i < 20; i++ {
		c := New(entries, nil)
		assert.Equal(t, []string{"momentum"}, c.keys)
		m, ok := c.Lookup("momentum")
		assert.True(t, ok)
		assert.Equal(t, "Shout", m.Name)
	}
}

func TestDeriveLabel_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "Carry Fx G10", DeriveLabel("carry_fx-g10"))
			}
		}()
	}
	wg.Wait()
}
