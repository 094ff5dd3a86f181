// Package cleaning implements the structure-preparation pipeline: chain
// renaming, residue triage and repair, protonation via an external tool, and
// the final annotation of charges and radii onto the structure.
package cleaning

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bindscape/meshbind/internal/domain/chem"
	"github.com/bindscape/meshbind/internal/domain/repair"
	"github.com/bindscape/meshbind/internal/domain/structure"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/pkg/errors"
)

// chainIDPool holds the identifiers handed out when numeric chain ids are
// rewritten. Ids are taken from the end of the pool.
const chainIDPool = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// ResidueRef names a residue through its chain id, for callers that track
// residues across a cleaning run. Refs are rewritten when chains are renamed.
type ResidueRef struct {
	ChainID string
	ID      structure.ResidueID
}

// Options controls a single Clean invocation.
type Options struct {
	// RenameChains rewrites numeric chain identifiers using letters from the
	// pool, so downstream tools that require alphabetic chains accept the
	// output.
	RenameChains bool

	// TrackedResidues are rewritten in place when chains are renamed.
	TrackedResidues []*ResidueRef

	// MinCompleteness is the heavy-atom completeness below which a standard
	// residue is sent to repair.
	MinCompleteness float64

	// ReplaceBackbone lets repairs overwrite observed backbone coordinates
	// with the fitted conformer's.
	ReplaceBackbone bool

	// Protonate runs the external protonation tool and annotates the result.
	Protonate bool

	// KeepPQR retains the PQR side product and returns its path; otherwise
	// all transient files are removed before Clean returns.
	KeepPQR bool

	// WorkDir hosts transient files. Empty selects the system temp dir.
	WorkDir string

	// MinRadius floors the annotated van-der-Waals radii.
	MinRadius float64

	// RemoveHydrogens strips hydrogens as the final step.
	RemoveHydrogens bool
}

// DefaultOptions returns the standard cleaning configuration.
func DefaultOptions() Options {
	return Options{
		RenameChains:    true,
		MinCompleteness: 0.6,
		Protonate:       true,
		MinRadius:       0.6,
		RemoveHydrogens: false,
	}
}

// Pipeline cleans structures for downstream surface generation. Safe for
// concurrent use; all per-run state lives in Clean's frame.
type Pipeline struct {
	logger     logging.Logger
	mutator    *repair.Mutator
	components *chem.ComponentCatalog
	solvent    *regexp.Regexp
	protonator Protonator
}

// NewPipeline constructs a cleaning pipeline. The protonator may be nil when
// protonation is never requested.
func NewPipeline(logger logging.Logger, mutator *repair.Mutator, components *chem.ComponentCatalog, solvent *regexp.Regexp, protonator Protonator) (*Pipeline, error) {
	if logger == nil {
		return nil, errors.InvalidParameter("logger must not be nil")
	}
	if mutator == nil {
		return nil, errors.InvalidParameter("mutator must not be nil")
	}
	if components == nil {
		return nil, errors.InvalidParameter("component catalog must not be nil")
	}
	if solvent == nil {
		solvent = chem.DefaultSolventPattern
	}
	return &Pipeline{
		logger:     logger.Named("cleaning"),
		mutator:    mutator,
		components: components,
		solvent:    solvent,
		protonator: protonator,
	}, nil
}

// Clean runs the full preparation sequence on s, mutating it in place until
// protonation swaps in the tool-generated geometry. The returned structure is
// the cleaned one; the string is the PQR path when Options.KeepPQR is set.
func (p *Pipeline) Clean(ctx context.Context, s *structure.Structure, opts Options) (*structure.Structure, string, error) {
	if s == nil {
		return nil, "", errors.InvalidParameter("structure must not be nil")
	}
	if opts.MinCompleteness <= 0 {
		opts.MinCompleteness = 0.6
	}
	if opts.MinRadius <= 0 {
		opts.MinRadius = 0.6
	}

	if opts.RenameChains {
		if err := p.renameChains(s, opts.TrackedResidues); err != nil {
			return nil, "", err
		}
	}

	p.triage(s, opts)

	pqrPath := ""
	if opts.Protonate {
		if p.protonator == nil {
			return nil, "", errors.FatalConfiguration("protonation requested but no protonator configured")
		}
		annotated, path, err := p.protonate(ctx, s, opts)
		if err != nil {
			return nil, "", err
		}
		s = annotated
		pqrPath = path
	}

	if opts.RemoveHydrogens {
		s.StripHydrogens()
	}
	return s, pqrPath, nil
}

// renameChains rewrites numeric chain identifiers with letters from the pool
// and updates tracked residue refs accordingly.
func (p *Pipeline) renameChains(s *structure.Structure, tracked []*ResidueRef) error {
	pool := []byte(chainIDPool)
	inUse := make(map[string]bool)
	for _, c := range s.Chains() {
		inUse[c.ID] = true
	}
	kept := pool[:0]
	for _, b := range pool {
		if !inUse[string(b)] {
			kept = append(kept, b)
		}
	}
	pool = kept

	for _, c := range s.Chains() {
		if !isNumericID(c.ID) {
			continue
		}
		if len(pool) == 0 {
			return errors.FatalConfiguration("chain identifier pool exhausted").
				WithDetail("structure has more numeric chains than available letters")
		}
		newID := string(pool[len(pool)-1])
		pool = pool[:len(pool)-1]
		oldID := c.ID
		if err := s.RenameChain(oldID, newID); err != nil {
			return err
		}
		for _, ref := range tracked {
			if ref != nil && ref.ChainID == oldID {
				ref.ChainID = newID
			}
		}
		p.logger.Info("renamed chain",
			logging.String("from", oldID),
			logging.String("to", newID))
	}
	return nil
}

func isNumericID(id string) bool {
	if id == "" {
		return true
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// triageAction is a staged decision applied after the triage scan.
type triageAction struct {
	chain   *structure.Chain
	id      structure.ResidueID
	replace *structure.Residue
	reason  string
	silent  bool
}

// triage walks every residue, stages remove/replace decisions, and applies
// them once iteration is over so the scan never observes its own edits.
func (p *Pipeline) triage(s *structure.Structure, opts Options) {
	var actions []triageAction
	for _, chain := range s.Chains() {
		for _, res := range chain.Residues() {
			action, ok := p.triageResidue(chain, res, opts)
			if ok {
				actions = append(actions, action)
			}
		}
	}
	for _, a := range actions {
		if a.replace != nil {
			a.chain.ReplaceResidue(a.id, a.replace)
			continue
		}
		a.chain.RemoveResidue(a.id)
		if !a.silent {
			p.logger.Info("removed residue",
				logging.String("chain", a.chain.ID),
				logging.Int("seq", a.id.Seq),
				logging.String("reason", a.reason))
		}
	}
}

func (p *Pipeline) triageResidue(chain *structure.Chain, res *structure.Residue, opts Options) (triageAction, bool) {
	switch {
	case p.completeness(res) < opts.MinCompleteness:
		// Completeness outranks the hetero-record check: a truncated residue
		// goes to repair whatever record it arrived in.
		repl, ok := p.mutator.Mutate(res, opts.ReplaceBackbone)
		if !ok {
			return triageAction{chain: chain, id: res.ID, reason: "incomplete residue could not be repaired"}, true
		}
		p.logger.Info("repaired incomplete residue",
			logging.String("chain", chain.ID),
			logging.Int("seq", res.ID.Seq),
			logging.String("residue", res.Name))
		return triageAction{chain: chain, id: res.ID, replace: repl}, true

	case p.mutator.Standard(res.Name):
		if res.ID.IsHet() {
			return triageAction{chain: chain, id: res.ID, reason: "standard residue in hetero record"}, true
		}
		return triageAction{}, false

	case res.ID.HetFlag == "W":
		return triageAction{chain: chain, id: res.ID, silent: true}, true

	case p.solvent.MatchString(res.Name):
		return triageAction{}, false

	case p.mutator.Modified(res.Name):
		repl, ok := p.mutator.Mutate(res, opts.ReplaceBackbone)
		if !ok {
			return triageAction{chain: chain, id: res.ID, reason: "modified residue could not be repaired"}, true
		}
		p.logger.Info("mutated modified residue",
			logging.String("chain", chain.ID),
			logging.Int("seq", res.ID.Seq),
			logging.String("from", res.Name),
			logging.String("to", repl.Name))
		return triageAction{chain: chain, id: res.ID, replace: repl}, true

	default:
		return triageAction{chain: chain, id: res.ID, reason: "unrecognized residue"}, true
	}
}

// completeness is the observed heavy-atom fraction of the residue, measured
// against the component count minus the terminal atom absent on all but the
// last residue of a chain.
func (p *Pipeline) completeness(res *structure.Residue) float64 {
	comp, ok := p.components.Component(res.Name)
	if !ok || comp.HeavyAtomCount <= 1 {
		return 1
	}
	return float64(res.HeavyAtomCount()) / float64(comp.HeavyAtomCount-1)
}

// protonate writes s to a transient PDB file, runs the protonation tool, and
// reloads the structure from the generated PQR with charges and radii
// annotated. Transient files are removed unless KeepPQR retains the PQR.
func (p *Pipeline) protonate(ctx context.Context, s *structure.Structure, opts Options) (*structure.Structure, string, error) {
	workDir, err := os.MkdirTemp(opts.WorkDir, "meshbind-clean-*")
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeIO, "creating work dir")
	}
	keepPQR := false
	defer func() {
		if keepPQR {
			// Remove everything except the PQR side product.
			os.Remove(filepath.Join(workDir, s.Name+".pdb"))
			return
		}
		os.RemoveAll(workDir)
	}()

	pdbPath := filepath.Join(workDir, s.Name+".pdb")
	if err := structure.SavePDB(pdbPath, s); err != nil {
		return nil, "", err
	}

	pqrPath, err := p.protonator.Protonate(ctx, pdbPath, workDir)
	if err != nil {
		return nil, "", err
	}

	reloaded, err := structure.ParsePDBFile(pqrPath, s.Name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(pqrPath)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeIO, "opening PQR output")
	}
	annotations, err := structure.ParsePQRAnnotations(f)
	f.Close()
	if err != nil {
		return nil, "", err
	}
	missed := 0
	for _, ann := range annotations {
		if !reloaded.Annotate(ann, opts.MinRadius) {
			missed++
		}
	}
	if missed > 0 {
		p.logger.Warn("some PQR annotations did not match any atom",
			logging.Int("missed", missed),
			logging.Int("total", len(annotations)))
	}

	if opts.KeepPQR {
		keepPQR = true
		return reloaded, pqrPath, nil
	}
	return reloaded, "", nil
}
