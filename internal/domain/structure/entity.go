// Package structure defines the molecular structure hierarchy used by the
// preparation pipeline: a Structure is an ordered collection of Chains, each
// an ordered collection of Residues, each an ordered collection of Atoms.
// Instances are mutated in place during cleaning; ownership is exclusive to
// the pipeline invocation that holds them.
package structure

import (
	"strings"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Atom is a single atom with its 3D coordinate and optional charge/radius
// annotations produced by the protonation step.
type Atom struct {
	Name    string
	Element string
	Coord   [3]float64

	// Charge and Radius are populated by the protonation step; Annotated
	// reports whether they carry real values.
	Charge    float64
	Radius    float64
	Annotated bool
}

// IsHydrogen reports whether the atom is a hydrogen (or deuterium). When the
// element field is absent the atom name is used as a fallback.
func (a *Atom) IsHydrogen() bool {
	switch a.Element {
	case "H", "D":
		return true
	case "":
	default:
		return false
	}
	name := strings.TrimLeft(a.Name, "0123456789")
	return strings.HasPrefix(name, "H") || strings.HasPrefix(name, "D")
}

// Copy returns a deep copy of the atom.
func (a *Atom) Copy() *Atom {
	clone := *a
	return &clone
}

// ResidueID identifies a residue within a chain: a hetero flag (" " for
// polymer residues, "W" for waters, "H_<name>" for other HETATM records), a
// sequence number and an insertion code. The tuple is unique within a chain.
type ResidueID struct {
	HetFlag string
	Seq     int
	ICode   string
}

// IsHet reports whether the residue came from a HETATM record.
func (id ResidueID) IsHet() bool { return id.HetFlag != " " }

// Residue is an ordered collection of atoms sharing one residue identity.
type Residue struct {
	Name  string
	ID    ResidueID
	atoms []*Atom
	index map[string]int
}

// NewResidue constructs an empty residue.
func NewResidue(name string, id ResidueID) *Residue {
	return &Residue{Name: name, ID: id, index: make(map[string]int)}
}

// Atoms returns the ordered atom slice. Callers must not reorder it.
func (r *Residue) Atoms() []*Atom { return r.atoms }

// Atom returns the named atom, if present.
func (r *Residue) Atom(name string) (*Atom, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.atoms[i], true
}

// Has reports whether the residue contains the named atom.
func (r *Residue) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// AddAtom appends an atom, replacing any existing atom with the same name.
func (r *Residue) AddAtom(a *Atom) {
	if i, ok := r.index[a.Name]; ok {
		r.atoms[i] = a
		return
	}
	r.index[a.Name] = len(r.atoms)
	r.atoms = append(r.atoms, a)
}

// HeavyAtomCount counts the non-hydrogen atoms in the residue.
func (r *Residue) HeavyAtomCount() int {
	count := 0
	for _, a := range r.atoms {
		if !a.IsHydrogen() {
			count++
		}
	}
	return count
}

// StripHydrogens removes all hydrogen atoms in place.
func (r *Residue) StripHydrogens() {
	kept := r.atoms[:0]
	for _, a := range r.atoms {
		if !a.IsHydrogen() {
			kept = append(kept, a)
		}
	}
	r.atoms = kept
	r.index = make(map[string]int, len(kept))
	for i, a := range kept {
		r.index[a.Name] = i
	}
}

// Transform applies the rotation matrix rot followed by translation trans to
// every atom coordinate: c' = rot·c + trans.
func (r *Residue) Transform(rot [3][3]float64, trans [3]float64) {
	for _, a := range r.atoms {
		c := a.Coord
		for i := 0; i < 3; i++ {
			a.Coord[i] = rot[i][0]*c[0] + rot[i][1]*c[1] + rot[i][2]*c[2] + trans[i]
		}
	}
}

// Copy returns a deep copy of the residue.
func (r *Residue) Copy() *Residue {
	clone := NewResidue(r.Name, r.ID)
	for _, a := range r.atoms {
		clone.AddAtom(a.Copy())
	}
	return clone
}

// Chain is an ordered collection of residues with a single-character (or
// numeric, before cleaning) identifier.
type Chain struct {
	ID       string
	residues []*Residue
	index    map[ResidueID]int
}

// NewChain constructs an empty chain.
func NewChain(id string) *Chain {
	return &Chain{ID: id, index: make(map[ResidueID]int)}
}

// Residues returns the ordered residue slice.
func (c *Chain) Residues() []*Residue { return c.residues }

// Residue returns the residue with the given identity, if present.
func (c *Chain) Residue(id ResidueID) (*Residue, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.residues[i], true
}

// AddResidue appends a residue. Adding a duplicate identity is an error.
func (c *Chain) AddResidue(r *Residue) error {
	if _, ok := c.index[r.ID]; ok {
		return errors.Newf(errors.CodeStructureParse,
			"duplicate residue id (%s,%d,%q) in chain %s", r.ID.HetFlag, r.ID.Seq, r.ID.ICode, c.ID)
	}
	c.index[r.ID] = len(c.residues)
	c.residues = append(c.residues, r)
	return nil
}

// RemoveResidue detaches the residue with the given identity.
func (c *Chain) RemoveResidue(id ResidueID) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.residues = append(c.residues[:i], c.residues[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.residues); j++ {
		c.index[c.residues[j].ID] = j
	}
	return true
}

// ReplaceResidue substitutes the residue with the given identity in place,
// preserving its position in the chain. The replacement keeps the identity.
func (c *Chain) ReplaceResidue(id ResidueID, replacement *Residue) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	replacement.ID = id
	c.residues[i] = replacement
	return true
}

// Structure is an ordered collection of chains parsed from a structural file.
type Structure struct {
	Name   string
	chains []*Chain
	index  map[string]int
}

// New constructs an empty structure.
func New(name string) *Structure {
	return &Structure{Name: name, index: make(map[string]int)}
}

// Chains returns the ordered chain slice.
func (s *Structure) Chains() []*Chain { return s.chains }

// Chain returns the chain with the given id, if present.
func (s *Structure) Chain(id string) (*Chain, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.chains[i], true
}

// AddChain appends a chain; an existing chain with the same id is returned
// instead of being duplicated.
func (s *Structure) AddChain(id string) *Chain {
	if i, ok := s.index[id]; ok {
		return s.chains[i]
	}
	c := NewChain(id)
	s.index[id] = len(s.chains)
	s.chains = append(s.chains, c)
	return c
}

// RenameChain changes a chain's identifier, updating the lookup index.
// Renaming to an id that is already taken is an error.
func (s *Structure) RenameChain(oldID, newID string) error {
	if _, taken := s.index[newID]; taken {
		return errors.Newf(errors.CodeFatalConfiguration, "chain id %q already in use", newID)
	}
	i, ok := s.index[oldID]
	if !ok {
		return errors.Newf(errors.CodeNotFound, "no chain with id %q", oldID)
	}
	s.chains[i].ID = newID
	delete(s.index, oldID)
	s.index[newID] = i
	return nil
}

// StripHydrogens removes hydrogens from every residue in every chain.
func (s *Structure) StripHydrogens() {
	for _, c := range s.chains {
		for _, r := range c.residues {
			r.StripHydrogens()
		}
	}
}

// AtomCount returns the total number of atoms in the structure.
func (s *Structure) AtomCount() int {
	n := 0
	for _, c := range s.chains {
		for _, r := range c.residues {
			n += len(r.Atoms())
		}
	}
	return n
}
