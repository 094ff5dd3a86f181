package chem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultComponentCatalog(t *testing.T) {
	cat := DefaultComponentCatalog()

	ala, ok := cat.Component("ALA")
	require.True(t, ok)
	assert.Equal(t, []string{"CB"}, ala.SideChainAtoms)
	assert.Equal(t, 6, ala.HeavyAtomCount)
	assert.Empty(t, ala.Parent)

	assert.True(t, cat.IsStandard("GLY"))
	assert.False(t, cat.IsStandard("MSE"))
	assert.Equal(t, "MET", cat.Parent("MSE"))
	assert.Equal(t, "", cat.Parent("ALA"))
	assert.Equal(t, "", cat.Parent("XYZ"))

	_, ok = cat.Component("XYZ")
	assert.False(t, ok)

	assert.Len(t, cat.StandardResidues(), 20)
}

func TestComponentCatalog_HeavyAtomCounts(t *testing.T) {
	cat := DefaultComponentCatalog()
	// Every standard residue count must equal backbone (5 with OXT) plus the
	// side-chain atom count.
	for _, name := range StandardResidueNames {
		comp, ok := cat.Component(name)
		require.True(t, ok, name)
		assert.Equal(t, 5+len(comp.SideChainAtoms), comp.HeavyAtomCount, name)
	}
}

func TestComponentCatalog_CopiesInputs(t *testing.T) {
	comps := []Component{{Name: "AAA", HeavyAtomCount: 3}}
	std := []string{"AAA"}
	cat := NewComponentCatalog(comps, std)

	comps[0].Name = "BBB"
	std[0] = "BBB"

	_, ok := cat.Component("AAA")
	assert.True(t, ok)
	assert.True(t, cat.IsStandard("AAA"))
	assert.False(t, cat.IsStandard("BBB"))
}

func TestDefaultSolventPattern(t *testing.T) {
	assert.True(t, DefaultSolventPattern.MatchString("GOL"))
	assert.True(t, DefaultSolventPattern.MatchString("SO4"))
	assert.False(t, DefaultSolventPattern.MatchString("HEM"))
	assert.False(t, DefaultSolventPattern.MatchString("XGOL"))
}
