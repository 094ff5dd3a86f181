package cleaning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindscape/meshbind/internal/domain/chem"
	"github.com/bindscape/meshbind/internal/domain/repair"
	"github.com/bindscape/meshbind/internal/domain/structure"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/pkg/errors"
)

func referenceMET() *structure.Residue {
	r := structure.NewResidue("MET", structure.ResidueID{HetFlag: " ", Seq: 2, ICode: " "})
	coords := map[string][3]float64{
		"N": {0, 0, 0}, "CA": {1.46, 0, 0}, "C": {2.0, 1.4, 0}, "O": {1.3, 2.4, 0},
		"CB": {2.0, -0.8, 1.2}, "CG": {3.5, -0.9, 1.3}, "SD": {4.2, -2.2, 2.3}, "CE": {5.9, -2.0, 2.0},
	}
	for _, name := range []string{"N", "CA", "C", "O", "CB", "CG", "SD", "CE"} {
		element := name[:1]
		if name == "SD" {
			element = "S"
		}
		r.AddAtom(&structure.Atom{Name: name, Element: element, Coord: coords[name]})
	}
	return r
}

func completeALA(seq int) *structure.Residue {
	r := structure.NewResidue("ALA", structure.ResidueID{HetFlag: " ", Seq: seq, ICode: " "})
	for i, name := range []string{"N", "CA", "C", "O", "CB"} {
		r.AddAtom(&structure.Atom{
			Name:    name,
			Element: name[:1],
			Coord:   [3]float64{float64(i), float64(seq), 0},
		})
	}
	return r
}

func newTestPipeline(t *testing.T) (*Pipeline, *logging.MemoryLogger) {
	t.Helper()
	logger := logging.NewMemoryLogger()
	conformers := chem.NewConformerCatalog(map[string][]*structure.Residue{
		"MET": {referenceMET()},
	})
	mutator := repair.NewMutator(chem.DefaultComponentCatalog(), conformers)
	p, err := NewPipeline(logger, mutator, chem.DefaultComponentCatalog(), nil, nil)
	require.NoError(t, err)
	return p, logger
}

func noProtonation() Options {
	opts := DefaultOptions()
	opts.Protonate = false
	return opts
}

func TestNewPipeline_Validation(t *testing.T) {
	mutator := repair.NewMutator(chem.DefaultComponentCatalog(), chem.NewConformerCatalog(nil))
	_, err := NewPipeline(nil, mutator, chem.DefaultComponentCatalog(), nil, nil)
	assert.Error(t, err)
	_, err = NewPipeline(logging.NewNopLogger(), nil, chem.DefaultComponentCatalog(), nil, nil)
	assert.Error(t, err)
	_, err = NewPipeline(logging.NewNopLogger(), mutator, nil, nil, nil)
	assert.Error(t, err)
}

func TestPipeline_Clean_Triage(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("1abc")
	chainA := s.AddChain("A")
	require.NoError(t, chainA.AddResidue(completeALA(1)))

	// Water removed silently.
	hoh := structure.NewResidue("HOH", structure.ResidueID{HetFlag: "W", Seq: 101, ICode: " "})
	hoh.AddAtom(&structure.Atom{Name: "O", Element: "O"})
	require.NoError(t, chainA.AddResidue(hoh))

	// Solvent additive kept.
	gol := structure.NewResidue("GOL", structure.ResidueID{HetFlag: "H_GOL", Seq: 102, ICode: " "})
	gol.AddAtom(&structure.Atom{Name: "C1", Element: "C"})
	require.NoError(t, chainA.AddResidue(gol))

	// Unknown ligand removed with a logged reason.
	xyz := structure.NewResidue("XYZ", structure.ResidueID{HetFlag: "H_XYZ", Seq: 103, ICode: " "})
	xyz.AddAtom(&structure.Atom{Name: "C1", Element: "C"})
	require.NoError(t, chainA.AddResidue(xyz))

	cleaned, pqr, err := p.Clean(context.Background(), s, noProtonation())
	require.NoError(t, err)
	assert.Empty(t, pqr)

	chain, _ := cleaned.Chain("A")
	require.Len(t, chain.Residues(), 2)
	assert.Equal(t, "ALA", chain.Residues()[0].Name)
	assert.Equal(t, "GOL", chain.Residues()[1].Name)

	assert.True(t, logger.Contains("removed residue"))
	assert.True(t, logger.Contains("unrecognized residue"))
}

func TestPipeline_Clean_StandardAsHetRemoved(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("het")
	chain := s.AddChain("A")
	stray := structure.NewResidue("ALA", structure.ResidueID{HetFlag: "H_ALA", Seq: 5, ICode: " "})
	for i, name := range []string{"N", "CA", "C", "O", "CB"} {
		stray.AddAtom(&structure.Atom{Name: name, Element: name[:1], Coord: [3]float64{float64(i), 0, 0}})
	}
	require.NoError(t, chain.AddResidue(stray))

	cleaned, _, err := p.Clean(context.Background(), s, noProtonation())
	require.NoError(t, err)

	got, _ := cleaned.Chain("A")
	assert.Empty(t, got.Residues())
	assert.True(t, logger.Contains("hetero record"))
}

func TestPipeline_Clean_IncompleteHetResidueRepairedFirst(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("truncated")
	chain := s.AddChain("A")
	// A truncated MET filed as a hetero record. Low completeness sends it to
	// repair before the hetero-record removal can claim it.
	frag := structure.NewResidue("MET", structure.ResidueID{HetFlag: "H_MET", Seq: 5, ICode: " "})
	ref := referenceMET()
	for _, name := range []string{"N", "CA", "C", "CB"} {
		a, _ := ref.Atom(name)
		frag.AddAtom(a.Copy())
	}
	require.NoError(t, chain.AddResidue(frag))

	cleaned, _, err := p.Clean(context.Background(), s, noProtonation())
	require.NoError(t, err)

	got, _ := cleaned.Chain("A")
	require.Len(t, got.Residues(), 1)
	assert.Equal(t, "MET", got.Residues()[0].Name)
	assert.Len(t, got.Residues()[0].Atoms(), 8)
	assert.True(t, logger.Contains("repaired incomplete residue"))
	assert.False(t, logger.Contains("hetero record"))
}

func TestPipeline_Clean_MutatesModifiedResidue(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("mse")
	chain := s.AddChain("A")
	mse := structure.NewResidue("MSE", structure.ResidueID{HetFlag: "H_MSE", Seq: 42, ICode: " "})
	ref := referenceMET()
	for _, name := range []string{"N", "CA", "C", "O", "CB"} {
		a, _ := ref.Atom(name)
		mse.AddAtom(a.Copy())
	}
	require.NoError(t, chain.AddResidue(mse))

	cleaned, _, err := p.Clean(context.Background(), s, noProtonation())
	require.NoError(t, err)

	got, _ := cleaned.Chain("A")
	require.Len(t, got.Residues(), 1)
	assert.Equal(t, "MET", got.Residues()[0].Name)
	assert.True(t, logger.Contains("mutated modified residue"))
}

func TestPipeline_Clean_RepairFailureRemoves(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("frag")
	chain := s.AddChain("A")
	// A two-atom TRP fragment: incomplete, and no TRP conformers are loaded.
	frag := structure.NewResidue("TRP", structure.ResidueID{HetFlag: " ", Seq: 9, ICode: " "})
	frag.AddAtom(&structure.Atom{Name: "N", Element: "N"})
	frag.AddAtom(&structure.Atom{Name: "CA", Element: "C"})
	require.NoError(t, chain.AddResidue(frag))

	cleaned, _, err := p.Clean(context.Background(), s, noProtonation())
	require.NoError(t, err)

	got, _ := cleaned.Chain("A")
	assert.Empty(t, got.Residues())
	assert.True(t, logger.Contains("could not be repaired"))
}

func TestPipeline_Clean_RenamesNumericChains(t *testing.T) {
	p, logger := newTestPipeline(t)

	s := structure.New("nmr")
	chain1 := s.AddChain("1")
	require.NoError(t, chain1.AddResidue(completeALA(1)))
	s.AddChain("B")

	ref := &ResidueRef{ChainID: "1", ID: structure.ResidueID{HetFlag: " ", Seq: 1, ICode: " "}}
	opts := noProtonation()
	opts.TrackedResidues = []*ResidueRef{ref}

	cleaned, _, err := p.Clean(context.Background(), s, opts)
	require.NoError(t, err)

	_, ok := cleaned.Chain("1")
	assert.False(t, ok)
	renamed, ok := cleaned.Chain("z")
	require.True(t, ok)
	assert.Len(t, renamed.Residues(), 1)
	assert.Equal(t, "z", ref.ChainID)
	assert.True(t, logger.Contains("renamed chain"))
}

func TestPipeline_Clean_ChainPoolExhaustion(t *testing.T) {
	p, _ := newTestPipeline(t)

	s := structure.New("many")
	for i := 0; i < len(chainIDPool)+1; i++ {
		s.AddChain(fmt.Sprintf("%d", i))
	}

	_, _, err := p.Clean(context.Background(), s, noProtonation())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFatalConfiguration))
}

// fakeProtonator writes a canned PQR next to the input file.
type fakeProtonator struct {
	pqr string
}

func (f *fakeProtonator) Protonate(_ context.Context, pdbPath, outDir string) (string, error) {
	path := filepath.Join(outDir, "out.pqr")
	return path, os.WriteFile(path, []byte(f.pqr), 0o644)
}

const fakePQR = `REMARK   1 generated for test
ATOM      1  N   ALA A   1       0.000   1.000   0.000 -0.4157 1.8240
ATOM      2  CA  ALA A   1       1.000   1.000   0.000  0.0337 1.9080
ATOM      3  HA  ALA A   1       1.500   1.500   0.000  0.0823 0.0000
`

func TestPipeline_Clean_Protonation(t *testing.T) {
	logger := logging.NewMemoryLogger()
	mutator := repair.NewMutator(chem.DefaultComponentCatalog(), chem.NewConformerCatalog(nil))
	p, err := NewPipeline(logger, mutator, chem.DefaultComponentCatalog(), nil, &fakeProtonator{pqr: fakePQR})
	require.NoError(t, err)

	s := structure.New("prot")
	chain := s.AddChain("A")
	require.NoError(t, chain.AddResidue(completeALA(1)))

	opts := DefaultOptions()
	opts.RenameChains = false
	opts.WorkDir = t.TempDir()

	cleaned, pqr, err := p.Clean(context.Background(), s, opts)
	require.NoError(t, err)
	assert.Empty(t, pqr)

	got, ok := cleaned.Chain("A")
	require.True(t, ok)
	res := got.Residues()[0]
	require.Len(t, res.Atoms(), 3)

	n, _ := res.Atom("N")
	assert.True(t, n.Annotated)
	assert.InDelta(t, -0.4157, n.Charge, 1e-9)

	// Zero radius is floored.
	ha, _ := res.Atom("HA")
	assert.Equal(t, 0.6, ha.Radius)
}

func TestPipeline_Clean_KeepPQR(t *testing.T) {
	logger := logging.NewNopLogger()
	mutator := repair.NewMutator(chem.DefaultComponentCatalog(), chem.NewConformerCatalog(nil))
	p, err := NewPipeline(logger, mutator, chem.DefaultComponentCatalog(), nil, &fakeProtonator{pqr: fakePQR})
	require.NoError(t, err)

	s := structure.New("keep")
	chain := s.AddChain("A")
	require.NoError(t, chain.AddResidue(completeALA(1)))

	opts := DefaultOptions()
	opts.RenameChains = false
	opts.KeepPQR = true
	opts.WorkDir = t.TempDir()

	_, pqr, err := p.Clean(context.Background(), s, opts)
	require.NoError(t, err)
	require.NotEmpty(t, pqr)
	_, statErr := os.Stat(pqr)
	assert.NoError(t, statErr)
}

func TestPipeline_Clean_StripHydrogens(t *testing.T) {
	logger := logging.NewNopLogger()
	mutator := repair.NewMutator(chem.DefaultComponentCatalog(), chem.NewConformerCatalog(nil))
	p, err := NewPipeline(logger, mutator, chem.DefaultComponentCatalog(), nil, &fakeProtonator{pqr: fakePQR})
	require.NoError(t, err)

	s := structure.New("strip")
	chain := s.AddChain("A")
	require.NoError(t, chain.AddResidue(completeALA(1)))

	opts := DefaultOptions()
	opts.RenameChains = false
	opts.RemoveHydrogens = true
	opts.WorkDir = t.TempDir()

	cleaned, _, err := p.Clean(context.Background(), s, opts)
	require.NoError(t, err)

	got, _ := cleaned.Chain("A")
	res := got.Residues()[0]
	assert.False(t, res.Has("HA"))
	assert.Len(t, res.Atoms(), 2)
}

func TestPipeline_Clean_ProtonationMissingTool(t *testing.T) {
	p, _ := newTestPipeline(t)
	s := structure.New("x")
	s.AddChain("A")
	_, _, err := p.Clean(context.Background(), s, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeFatalConfiguration))
}
