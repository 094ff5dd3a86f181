package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bindscape/meshbind/internal/application/cleaning"
	"github.com/bindscape/meshbind/internal/config"
	"github.com/bindscape/meshbind/internal/domain/chem"
	"github.com/bindscape/meshbind/internal/domain/repair"
	"github.com/bindscape/meshbind/internal/domain/structure"
	"github.com/bindscape/meshbind/internal/infrastructure/monitoring/logging"
	"github.com/bindscape/meshbind/internal/infrastructure/runstore"
	"github.com/bindscape/meshbind/pkg/errors"
)

// CleanOptions holds the clean subcommand's flags.
type CleanOptions struct {
	Input  string
	Output string
}

// NewCleanCmd creates the clean subcommand.
func NewCleanCmd(opts *RootOptions) *cobra.Command {
	cleanOpts := &CleanOptions{}
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean and repair a protein structure",
		Long: "clean triages residues, repairs damaged or modified ones against\n" +
			"reference conformers, optionally protonates via pdb2pqr, and writes the\n" +
			"prepared structure.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClean(cmd, opts, cleanOpts)
		},
	}
	cmd.Flags().StringVarP(&cleanOpts.Input, "input", "i", "", "input PDB file (required)")
	cmd.Flags().StringVar(&cleanOpts.Output, "output", "", "output PDB path (default: <input>_clean.pdb in the output dir)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runClean(cmd *cobra.Command, opts *RootOptions, cleanOpts *CleanOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(cleanOpts.Input), filepath.Ext(cleanOpts.Input))
	output := cleanOpts.Output
	if output == "" {
		if err := os.MkdirAll(cfg.Run.OutputDir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeIO, "creating output directory")
		}
		output = filepath.Join(cfg.Run.OutputDir, stem+"_clean.pdb")
	}

	s, err := structure.ParsePDBFile(cleanOpts.Input, stem)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	cleaned, pqrPath, err := pipeline.Clean(cmd.Context(), s, cleaning.Options{
		RenameChains:    cfg.Cleaning.RenameChains,
		MinCompleteness: cfg.Cleaning.MinCompleteness,
		ReplaceBackbone: cfg.Cleaning.ReplaceBackbone,
		Protonate:       cfg.Cleaning.Protonate,
		KeepPQR:         cfg.Cleaning.KeepPQR,
		WorkDir:         cfg.Run.OutputDir,
		MinRadius:       cfg.Cleaning.MinRadius,
		RemoveHydrogens: cfg.Cleaning.RemoveHydrogens,
	})
	if err != nil {
		return err
	}
	if err := structure.SavePDB(output, cleaned); err != nil {
		return err
	}

	if err := saveCleanRecord(cmd, cfg, opts, stem, started); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s: %d atoms -> %s\n", stem, cleaned.AtomCount(), output)
	if pqrPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "kept PQR side product: %s\n", pqrPath)
	}
	return nil
}

// buildPipeline assembles the cleaning pipeline from configuration: component
// catalog, conformer catalog, repair engine and protonator.
func buildPipeline(cfg *config.Config, logger logging.Logger) (*cleaning.Pipeline, error) {
	components := chem.DefaultComponentCatalog()

	conformers := chem.NewConformerCatalog(nil)
	if cfg.Cleaning.ConformerDir != "" {
		loaded, err := chem.LoadConformerCatalog(cfg.Cleaning.ConformerDir)
		if err != nil {
			return nil, err
		}
		conformers = loaded
	}

	var protonator cleaning.Protonator
	if cfg.Cleaning.Protonate {
		protonator = &cleaning.PDB2PQR{Binary: cfg.Cleaning.PDB2PQRBinary}
	}

	mutator := repair.NewMutator(components, conformers)
	return cleaning.NewPipeline(logger, mutator, components, nil, protonator)
}

func saveCleanRecord(cmd *cobra.Command, cfg *config.Config, opts *RootOptions, stem string, started time.Time) error {
	digest := "env"
	if opts.ConfigPath != "" {
		var err error
		if digest, err = config.DigestFile(opts.ConfigPath); err != nil {
			return err
		}
	}

	store := openStore(cfg)
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	return store.Save(ctx, &runstore.RunRecord{
		RunID:        newRunName(opts.ConfigPath, started) + "_" + stem,
		Kind:         "clean",
		ConfigDigest: digest,
		StartedAt:    started,
		FinishedAt:   time.Now().UTC(),
		Status:       runstore.StatusCompleted,
	})
}
