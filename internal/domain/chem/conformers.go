package chem

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bindscape/meshbind/internal/domain/structure"
	"github.com/bindscape/meshbind/pkg/errors"
)

// ConformerCatalog maps standard residue names to reference conformer
// residues extracted from G-X-G tripeptide libraries. Candidates keep their
// reference-frame coordinates; the repair step superposes them onto the
// damaged residue. Immutable after construction.
type ConformerCatalog struct {
	candidates map[string][]*structure.Residue
}

// NewConformerCatalog builds a catalog from pre-extracted candidates. The
// residues are deep-copied so callers cannot mutate catalog state afterwards.
func NewConformerCatalog(candidates map[string][]*structure.Residue) *ConformerCatalog {
	c := &ConformerCatalog{candidates: make(map[string][]*structure.Residue, len(candidates))}
	for name, list := range candidates {
		copied := make([]*structure.Residue, len(list))
		for i, r := range list {
			copied[i] = r.Copy()
		}
		c.candidates[name] = copied
	}
	return c
}

// Candidates returns deep copies of the reference conformers for the named
// residue. The returned residues are owned by the caller.
func (c *ConformerCatalog) Candidates(name string) []*structure.Residue {
	list, ok := c.candidates[name]
	if !ok {
		return nil
	}
	out := make([]*structure.Residue, len(list))
	for i, r := range list {
		out[i] = r.Copy()
	}
	return out
}

// Residues returns the residue names the catalog has conformers for.
func (c *ConformerCatalog) Residues() []string {
	out := make([]string, 0, len(c.candidates))
	for name := range c.candidates {
		out = append(out, name)
	}
	return out
}

// centerSeq is the sequence position of the X residue in a G-X-G tripeptide.
const centerSeq = 2

// LoadTripeptideConformers parses a multi-model tripeptide PDB stream and
// returns one candidate per model: the central residue of each G-X-G
// tripeptide, with hydrogens stripped.
func LoadTripeptideConformers(r io.Reader) ([]*structure.Residue, error) {
	var out []*structure.Residue
	var model strings.Builder
	scanner := bufio.NewScanner(r)

	flush := func() error {
		if model.Len() == 0 {
			return nil
		}
		s, err := structure.ParsePDB(strings.NewReader(model.String()), "conformer")
		model.Reset()
		if err != nil {
			return err
		}
		for _, chain := range s.Chains() {
			res, ok := chain.Residue(structure.ResidueID{HetFlag: " ", Seq: centerSeq, ICode: " "})
			if !ok {
				continue
			}
			res.StripHydrogens()
			out = append(out, res.Copy())
			break
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ENDMDL") {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM") {
			model.WriteString(line)
			model.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "reading conformer library")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadConformerCatalog reads every <NAME>.pdb tripeptide library under dir
// into a catalog keyed by the upper-cased file stem.
func LoadConformerCatalog(dir string) (*ConformerCatalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pdb"))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "listing conformer libraries")
	}
	candidates := make(map[string][]*structure.Residue, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeIO, "opening conformer library")
		}
		conformers, err := LoadTripeptideConformers(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown,
				"parsing conformer library "+filepath.Base(path))
		}
		name := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), ".pdb"))
		candidates[name] = conformers
	}
	return NewConformerCatalog(candidates), nil
}
