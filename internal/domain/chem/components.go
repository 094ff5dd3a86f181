// Package chem holds the immutable chemical reference catalogs shared by the
// structure-preparation components: the chemical-component catalog (per
// residue atom sets and heavy-atom counts) and the reference tripeptide
// conformer catalog. Both are loaded once at construction time and are
// read-only thereafter, so they are safe to share across any number of
// concurrent cleaning invocations.
package chem

import "regexp"

// Component describes one residue type from the chemical-component
// dictionary: its side-chain and main-chain atom names, its heavy-atom count
// (including the terminal OXT, which is absent on all but the C-terminal
// residue) and, for modified residues, the standard parent residue name.
type Component struct {
	Name           string
	SideChainAtoms []string
	MainChainAtoms []string
	HeavyAtomCount int
	Parent         string
}

// ComponentCatalog maps residue names to their component definitions.
// Immutable after construction.
type ComponentCatalog struct {
	components map[string]Component
	standard   map[string]bool
}

// NewComponentCatalog builds a catalog from component definitions and the set
// of standard residue names. The inputs are copied; later mutation of the
// arguments does not affect the catalog.
func NewComponentCatalog(components []Component, standardResidues []string) *ComponentCatalog {
	c := &ComponentCatalog{
		components: make(map[string]Component, len(components)),
		standard:   make(map[string]bool, len(standardResidues)),
	}
	for _, comp := range components {
		c.components[comp.Name] = comp
	}
	for _, name := range standardResidues {
		c.standard[name] = true
	}
	return c
}

// Component returns the definition for the named residue, if known.
func (c *ComponentCatalog) Component(name string) (Component, bool) {
	comp, ok := c.components[name]
	return comp, ok
}

// IsStandard reports whether name is one of the standard residue names.
func (c *ComponentCatalog) IsStandard(name string) bool {
	return c.standard[name]
}

// Parent returns the standard parent residue name for a modified residue, or
// "" when the component is unknown or records no parent.
func (c *ComponentCatalog) Parent(name string) string {
	comp, ok := c.components[name]
	if !ok {
		return ""
	}
	return comp.Parent
}

// StandardResidues returns the standard residue name set as a slice.
func (c *ComponentCatalog) StandardResidues() []string {
	out := make([]string, 0, len(c.standard))
	for name := range c.standard {
		out = append(out, name)
	}
	return out
}

// mainChain is the backbone atom set shared by all amino acids.
var mainChain = []string{"N", "CA", "C", "O", "OXT"}

// standardAminoAcids lists the twenty standard residues with their side-chain
// atoms and heavy-atom counts (counts include the terminal OXT per the
// chemical-component dictionary convention).
var standardAminoAcids = []Component{
	{Name: "ALA", SideChainAtoms: []string{"CB"}, MainChainAtoms: mainChain, HeavyAtomCount: 6},
	{Name: "ARG", SideChainAtoms: []string{"CB", "CG", "CD", "NE", "CZ", "NH1", "NH2"}, MainChainAtoms: mainChain, HeavyAtomCount: 12},
	{Name: "ASN", SideChainAtoms: []string{"CB", "CG", "OD1", "ND2"}, MainChainAtoms: mainChain, HeavyAtomCount: 9},
	{Name: "ASP", SideChainAtoms: []string{"CB", "CG", "OD1", "OD2"}, MainChainAtoms: mainChain, HeavyAtomCount: 9},
	{Name: "CYS", SideChainAtoms: []string{"CB", "SG"}, MainChainAtoms: mainChain, HeavyAtomCount: 7},
	{Name: "GLN", SideChainAtoms: []string{"CB", "CG", "CD", "OE1", "NE2"}, MainChainAtoms: mainChain, HeavyAtomCount: 10},
	{Name: "GLU", SideChainAtoms: []string{"CB", "CG", "CD", "OE1", "OE2"}, MainChainAtoms: mainChain, HeavyAtomCount: 10},
	{Name: "GLY", SideChainAtoms: []string{}, MainChainAtoms: mainChain, HeavyAtomCount: 5},
	{Name: "HIS", SideChainAtoms: []string{"CB", "CG", "ND1", "CD2", "CE1", "NE2"}, MainChainAtoms: mainChain, HeavyAtomCount: 11},
	{Name: "ILE", SideChainAtoms: []string{"CB", "CG1", "CG2", "CD1"}, MainChainAtoms: mainChain, HeavyAtomCount: 9},
	{Name: "LEU", SideChainAtoms: []string{"CB", "CG", "CD1", "CD2"}, MainChainAtoms: mainChain, HeavyAtomCount: 9},
	{Name: "LYS", SideChainAtoms: []string{"CB", "CG", "CD", "CE", "NZ"}, MainChainAtoms: mainChain, HeavyAtomCount: 10},
	{Name: "MET", SideChainAtoms: []string{"CB", "CG", "SD", "CE"}, MainChainAtoms: mainChain, HeavyAtomCount: 9},
	{Name: "PHE", SideChainAtoms: []string{"CB", "CG", "CD1", "CD2", "CE1", "CE2", "CZ"}, MainChainAtoms: mainChain, HeavyAtomCount: 12},
	{Name: "PRO", SideChainAtoms: []string{"CB", "CG", "CD"}, MainChainAtoms: mainChain, HeavyAtomCount: 8},
	{Name: "SER", SideChainAtoms: []string{"CB", "OG"}, MainChainAtoms: mainChain, HeavyAtomCount: 7},
	{Name: "THR", SideChainAtoms: []string{"CB", "OG1", "CG2"}, MainChainAtoms: mainChain, HeavyAtomCount: 8},
	{Name: "TRP", SideChainAtoms: []string{"CB", "CG", "CD1", "CD2", "NE1", "CE2", "CE3", "CZ2", "CZ3", "CH2"}, MainChainAtoms: mainChain, HeavyAtomCount: 15},
	{Name: "TYR", SideChainAtoms: []string{"CB", "CG", "CD1", "CD2", "CE1", "CE2", "CZ", "OH"}, MainChainAtoms: mainChain, HeavyAtomCount: 13},
	{Name: "VAL", SideChainAtoms: []string{"CB", "CG1", "CG2"}, MainChainAtoms: mainChain, HeavyAtomCount: 8},
}

// commonModifiedResidues lists frequently observed modified residues with a
// recorded standard parent, enough for repair of typical crystal structures.
var commonModifiedResidues = []Component{
	{Name: "MSE", SideChainAtoms: []string{"CB", "CG", "SE", "CE"}, MainChainAtoms: mainChain, HeavyAtomCount: 9, Parent: "MET"},
	{Name: "SEP", SideChainAtoms: []string{"CB", "OG", "P", "O1P", "O2P", "O3P"}, MainChainAtoms: mainChain, HeavyAtomCount: 11, Parent: "SER"},
	{Name: "TPO", SideChainAtoms: []string{"CB", "OG1", "CG2", "P", "O1P", "O2P", "O3P"}, MainChainAtoms: mainChain, HeavyAtomCount: 12, Parent: "THR"},
	{Name: "PTR", SideChainAtoms: []string{"CB", "CG", "CD1", "CD2", "CE1", "CE2", "CZ", "OH", "P", "O1P", "O2P", "O3P"}, MainChainAtoms: mainChain, HeavyAtomCount: 17, Parent: "TYR"},
	{Name: "CSO", SideChainAtoms: []string{"CB", "SG", "OD"}, MainChainAtoms: mainChain, HeavyAtomCount: 8, Parent: "CYS"},
	{Name: "HYP", SideChainAtoms: []string{"CB", "CG", "CD", "OD1"}, MainChainAtoms: mainChain, HeavyAtomCount: 9, Parent: "PRO"},
	{Name: "MLY", SideChainAtoms: []string{"CB", "CG", "CD", "CE", "NZ", "CH1", "CH2"}, MainChainAtoms: mainChain, HeavyAtomCount: 12, Parent: "LYS"},
	{Name: "KCX", SideChainAtoms: []string{"CB", "CG", "CD", "CE", "NZ", "CX", "OQ1", "OQ2"}, MainChainAtoms: mainChain, HeavyAtomCount: 13, Parent: "LYS"},
}

// StandardResidueNames is the canonical set of standard amino-acid names.
var StandardResidueNames = []string{
	"ALA", "ARG", "ASN", "ASP", "CYS", "GLN", "GLU", "GLY", "HIS", "ILE",
	"LEU", "LYS", "MET", "PHE", "PRO", "SER", "THR", "TRP", "TYR", "VAL",
}

// DefaultComponentCatalog returns the built-in catalog covering the twenty
// standard amino acids and common modified residues.
func DefaultComponentCatalog() *ComponentCatalog {
	components := make([]Component, 0, len(standardAminoAcids)+len(commonModifiedResidues))
	components = append(components, standardAminoAcids...)
	components = append(components, commonModifiedResidues...)
	return NewComponentCatalog(components, StandardResidueNames)
}

// DefaultSolventPattern matches crystallization additives that are kept in
// the structure rather than triaged as unrecognized residues.
var DefaultSolventPattern = regexp.MustCompile(`^(GOL|EDO|PEG|PG4|SO4|PO4|ACT|DMS|BME|TRS|MPD|FMT|EPE|MES|NAG)$`)
