package repair

import (
	"github.com/bindscape/meshbind/internal/domain/chem"
	"github.com/bindscape/meshbind/internal/domain/structure"
)

// Mutator replaces damaged or chemically modified residues with the
// best-fitting reference conformer of their standard form. It is stateless
// apart from the two immutable catalogs, so one instance serves concurrent
// pipelines.
type Mutator struct {
	components *chem.ComponentCatalog
	conformers *chem.ConformerCatalog
}

// NewMutator constructs a mutator over the given catalogs.
func NewMutator(components *chem.ComponentCatalog, conformers *chem.ConformerCatalog) *Mutator {
	return &Mutator{components: components, conformers: conformers}
}

// Standard reports whether name is a standard residue name.
func (m *Mutator) Standard(name string) bool {
	return m.components.IsStandard(name)
}

// Modified reports whether name is a known modified residue with a standard
// parent it can be mutated to.
func (m *Mutator) Modified(name string) bool {
	if m.components.IsStandard(name) {
		return false
	}
	parent := m.components.Parent(name)
	return parent != "" && m.components.IsStandard(parent)
}

// Parent returns the standard parent residue name for a modified residue.
func (m *Mutator) Parent(name string) string {
	return m.components.Parent(name)
}

// target resolves the standard residue a mutation of res should produce: the
// residue's own name when it is already standard (incomplete-residue repair),
// the standard parent for modified residues, "" otherwise.
func (m *Mutator) target(res *structure.Residue) string {
	if m.components.IsStandard(res.Name) {
		return res.Name
	}
	if parent := m.components.Parent(res.Name); parent != "" && m.components.IsStandard(parent) {
		return parent
	}
	return ""
}

// Mutate builds a replacement for res in its standard form. Every reference
// conformer of the target residue is rigidly superposed onto the observed
// side-chain atoms named by both the residue's component and its standard
// form; the conformer with the lowest RMSD wins. The winner is transformed
// into the frame of res, stripped of hydrogens, and keeps the identity of
// res. With replaceBackbone, observed main-chain coordinates overwrite the
// fitted conformer's, and observed main-chain atoms the conformer lacks
// (OXT, typically) are carried over.
//
// Returns false when the residue has no standard form, no conformer is
// available, or res contains none of the shared side-chain atoms.
func (m *Mutator) Mutate(res *structure.Residue, replaceBackbone bool) (*structure.Residue, bool) {
	target := m.target(res)
	if target == "" {
		return nil, false
	}
	candidates := m.conformers.Candidates(target)
	if len(candidates) == 0 {
		return nil, false
	}
	resComp, ok := m.components.Component(res.Name)
	if !ok {
		return nil, false
	}
	targetComp, ok := m.components.Component(target)
	if !ok {
		return nil, false
	}

	targetSide := make(map[string]bool, len(targetComp.SideChainAtoms))
	for _, name := range targetComp.SideChainAtoms {
		targetSide[name] = true
	}
	var pairNames []string
	for _, name := range resComp.SideChainAtoms {
		if targetSide[name] && res.Has(name) {
			pairNames = append(pairNames, name)
		}
	}
	if len(pairNames) == 0 {
		return nil, false
	}

	var best *structure.Residue
	var bestFit Superposition
	found := false
	for _, cand := range candidates {
		var moving, fixed [][3]float64
		for _, name := range pairNames {
			ca, ok := cand.Atom(name)
			if !ok {
				continue
			}
			ra, _ := res.Atom(name)
			moving = append(moving, ca.Coord)
			fixed = append(fixed, ra.Coord)
		}
		fit, err := Superpose(moving, fixed)
		if err != nil {
			continue
		}
		if !found || fit.RMSD < bestFit.RMSD {
			best = cand
			bestFit = fit
			found = true
		}
	}
	if !found {
		return nil, false
	}

	replacement := best.Copy()
	replacement.Transform(bestFit.Rotation, bestFit.Translation)
	replacement.StripHydrogens()
	replacement.Name = target
	replacement.ID = res.ID

	if replaceBackbone {
		for _, name := range resComp.MainChainAtoms {
			ra, ok := res.Atom(name)
			if !ok {
				continue
			}
			if a, ok := replacement.Atom(name); ok {
				a.Coord = ra.Coord
			} else {
				replacement.AddAtom(ra.Copy())
			}
		}
	}
	return replacement, true
}
