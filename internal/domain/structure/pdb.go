package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bindscape/meshbind/pkg/errors"
)

// Fixed-column offsets of PDB/PQR ATOM records. Both formats share the
// geometry columns; PQR replaces occupancy/B-factor with charge/radius.
const (
	colAtomNameStart = 12
	colAtomNameEnd   = 16
	colAltLoc        = 16
	colResNameStart  = 17
	colResNameEnd    = 20
	colChainID       = 21
	colResSeqStart   = 22
	colResSeqEnd     = 26
	colICode         = 26
	colXStart        = 30
	colYStart        = 38
	colZStart        = 46
	colCoordWidth    = 8
	colChargeStart   = 55
	colChargeEnd     = 62
	colRadiusStart   = 63
	colRadiusEnd     = 69
	colElementStart  = 76
	colElementEnd    = 78
)

func isWaterName(name string) bool {
	return name == "HOH" || name == "WAT"
}

// hetFlagFor maps a record type and residue name to the hetero flag used in
// ResidueID: " " for polymer residues, "W" for waters, "H_<name>" otherwise.
func hetFlagFor(record, resName string) string {
	if record != "HETATM" {
		return " "
	}
	if isWaterName(resName) {
		return "W"
	}
	return "H_" + resName
}

func parseCoord(line string, start int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(line[start:start+colCoordWidth]), 64)
}

// ParsePDB reads ATOM and HETATM records from r into a Structure. Alternate
// locations other than ' ' and 'A' are skipped; all models beyond the first
// ENDMDL are ignored.
func ParsePDB(r io.Reader, name string) (*Structure, error) {
	s := New(name)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, "ENDMDL") {
			break
		}
		record := ""
		if strings.HasPrefix(line, "ATOM  ") {
			record = "ATOM"
		} else if strings.HasPrefix(line, "HETATM") {
			record = "HETATM"
		} else {
			continue
		}
		if len(line) < colZStart+colCoordWidth {
			return nil, errors.Newf(errors.CodeStructureParse, "short %s record at line %d", record, lineNo)
		}
		if alt := line[colAltLoc]; alt != ' ' && alt != 'A' {
			continue
		}

		atomName := strings.TrimSpace(line[colAtomNameStart:colAtomNameEnd])
		resName := strings.TrimSpace(line[colResNameStart:colResNameEnd])
		chainID := string(line[colChainID])
		seq, err := strconv.Atoi(strings.TrimSpace(line[colResSeqStart:colResSeqEnd]))
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStructureParse,
				fmt.Sprintf("bad residue sequence number at line %d", lineNo))
		}
		iCode := string(line[colICode])

		var coord [3]float64
		for i, start := range []int{colXStart, colYStart, colZStart} {
			v, err := parseCoord(line, start)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeStructureParse,
					fmt.Sprintf("bad coordinate at line %d", lineNo))
			}
			coord[i] = v
		}

		element := ""
		if len(line) >= colElementEnd {
			element = strings.TrimSpace(line[colElementStart:colElementEnd])
		}

		rid := ResidueID{HetFlag: hetFlagFor(record, resName), Seq: seq, ICode: iCode}
		chain := s.AddChain(chainID)
		res, ok := chain.Residue(rid)
		if !ok {
			res = NewResidue(resName, rid)
			if err := chain.AddResidue(res); err != nil {
				return nil, err
			}
		}
		res.AddAtom(&Atom{Name: atomName, Element: element, Coord: coord})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "reading structure")
	}
	return s, nil
}

// ParsePDBFile reads a structure from the file at path.
func ParsePDBFile(path, name string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "opening structure file")
	}
	defer f.Close()
	return ParsePDB(f, name)
}

// WritePDB serializes the structure as fixed-column ATOM/HETATM records
// followed by END. Chain, residue and atom order is preserved.
func WritePDB(w io.Writer, s *Structure) error {
	bw := bufio.NewWriter(w)
	serial := 0
	for _, chain := range s.Chains() {
		cid := " "
		if chain.ID != "" {
			cid = chain.ID[:1]
		}
		for _, res := range chain.Residues() {
			record := "ATOM  "
			if res.ID.IsHet() {
				record = "HETATM"
			}
			for _, a := range res.Atoms() {
				serial++
				name := a.Name
				// Short atom names start in column 14 per PDB convention.
				if len(name) < 4 {
					name = " " + name
				}
				_, err := fmt.Fprintf(bw, "%s%5d %-4s %-3s %s%4d%s   %8.3f%8.3f%8.3f%6.2f%6.2f          %2s\n",
					record, serial, name, res.Name, cid, res.ID.Seq, res.ID.ICode,
					a.Coord[0], a.Coord[1], a.Coord[2], 1.0, 0.0, a.Element)
				if err != nil {
					return errors.Wrap(err, errors.CodeIO, "writing structure")
				}
			}
		}
	}
	if _, err := fmt.Fprintln(bw, "END"); err != nil {
		return errors.Wrap(err, errors.CodeIO, "writing structure")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeIO, "flushing structure")
	}
	return nil
}

// SavePDB writes the structure to the file at path.
func SavePDB(path string, s *Structure) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeIO, "creating structure file")
	}
	defer f.Close()
	return WritePDB(f, s)
}

// PQRAnnotation is one per-atom charge/radius record parsed from a PQR file.
type PQRAnnotation struct {
	ChainID  string
	Seq      int
	ICode    string
	AtomName string
	Charge   float64
	Radius   float64
}

// ParsePQRAnnotations extracts charge and van-der-Waals radius annotations
// from the fixed-column PQR output of the protonation tool: chain id at
// column 21, residue sequence number at columns 22-26, insertion code at 26,
// charge at 55-62, radius at 63-69, atom name at 12-16.
func ParsePQRAnnotations(r io.Reader) ([]PQRAnnotation, error) {
	var out []PQRAnnotation
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !strings.HasPrefix(line, "ATOM") {
			continue
		}
		if len(line) < colRadiusEnd {
			return nil, errors.Newf(errors.CodeExternalTool, "short PQR record at line %d", lineNo)
		}
		seq, err := strconv.Atoi(strings.TrimSpace(line[colResSeqStart:colResSeqEnd]))
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeExternalTool,
				fmt.Sprintf("bad PQR residue number at line %d", lineNo))
		}
		charge, err := strconv.ParseFloat(strings.TrimSpace(line[colChargeStart:colChargeEnd]), 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeExternalTool,
				fmt.Sprintf("bad PQR charge at line %d", lineNo))
		}
		radius, err := strconv.ParseFloat(strings.TrimSpace(line[colRadiusStart:colRadiusEnd]), 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeExternalTool,
				fmt.Sprintf("bad PQR radius at line %d", lineNo))
		}
		out = append(out, PQRAnnotation{
			ChainID:  string(line[colChainID]),
			Seq:      seq,
			ICode:    string(line[colICode]),
			AtomName: strings.TrimSpace(line[colAtomNameStart:colAtomNameEnd]),
			Charge:   charge,
			Radius:   radius,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "reading PQR")
	}
	return out, nil
}

// Annotate applies a parsed PQR annotation to the matching atom, if the
// residue and atom exist. Zero radii are floored at minRadius to avoid
// downstream singularities. Returns true when an atom was annotated.
func (s *Structure) Annotate(ann PQRAnnotation, minRadius float64) bool {
	chain, ok := s.Chain(ann.ChainID)
	if !ok {
		return false
	}
	res, ok := chain.Residue(ResidueID{HetFlag: " ", Seq: ann.Seq, ICode: ann.ICode})
	if !ok {
		return false
	}
	atom, ok := res.Atom(ann.AtomName)
	if !ok {
		return false
	}
	radius := ann.Radius
	if radius == 0 {
		radius = minRadius
	}
	atom.Charge = ann.Charge
	atom.Radius = radius
	atom.Annotated = true
	return true
}
