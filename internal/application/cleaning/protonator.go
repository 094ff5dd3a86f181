package cleaning

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Protonator adds hydrogens and per-atom charge/radius annotations to a
// structure file, producing a PQR file.
type Protonator interface {
	// Protonate processes the PDB file at pdbPath and returns the path of the
	// generated PQR file inside outDir.
	Protonate(ctx context.Context, pdbPath, outDir string) (string, error)
}

// PDB2PQR shells out to the pdb2pqr tool with the AMBER force field,
// preserving chain identifiers.
type PDB2PQR struct {
	// Binary overrides the executable name, "pdb2pqr" by default.
	Binary string
}

var _ Protonator = (*PDB2PQR)(nil)

// Protonate implements Protonator.
func (p *PDB2PQR) Protonate(ctx context.Context, pdbPath, outDir string) (string, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pdb2pqr"
	}
	base := strings.TrimSuffix(filepath.Base(pdbPath), filepath.Ext(pdbPath))
	pqrPath := filepath.Join(outDir, base+".pqr")

	cmd := exec.CommandContext(ctx, binary, "--ff=AMBER", "--keep-chain", pdbPath, pqrPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrap(err, errors.CodeExternalTool, "pdb2pqr failed").
			WithDetail(strings.TrimSpace(string(out)))
	}
	info, err := os.Stat(pqrPath)
	if err != nil || info.Size() == 0 {
		return "", errors.ExternalTool("pdb2pqr produced no output").WithDetail(pqrPath)
	}
	return pqrPath, nil
}
