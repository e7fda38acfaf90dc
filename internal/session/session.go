// Package session implements the per-file orchestrator that drives
// every other collaborator through the eleven-step pipeline —
// decode, transform, reduce, interlace, error/signature/snip handling,
// trial search, and the final full-rewrite-vs-copy-path write decision.
//
// Grounded on original_source/src/opngoptim.c's opng_optimize_file, the
// single function the rest of the original program funnels every file
// through; generalized here into a Session value that owns its
// diagnostic sink and file-system seam explicitly rather than reaching
// for globals, the same discipline internal/diag documents for logging.
package session

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/optipng-go/optipng/internal/copypath"
	"github.com/optipng-go/optipng/internal/diag"
	"github.com/optipng-go/optipng/internal/encoder"
	"github.com/optipng-go/optipng/internal/importer"
	"github.com/optipng-go/optipng/internal/opngerr"
	"github.com/optipng-go/optipng/internal/optconfig"
	"github.com/optipng-go/optipng/internal/pngchunk"
	"github.com/optipng-go/optipng/internal/pngimage"
	"github.com/optipng-go/optipng/internal/pngnative"
	"github.com/optipng-go/optipng/internal/rangeset"
	"github.com/optipng-go/optipng/internal/reduce"
	"github.com/optipng-go/optipng/internal/transform"
	"github.com/optipng-go/optipng/internal/trial"
)

// Stats is the per-file flag set and byte accounting: IS_PNG_FILE,
// HAS_PNG_DATASTREAM, HAS_PNG_SIGNATURE,
// HAS_DIGITAL_SIGNATURE, HAS_MULTIPLE_IMAGES, HAS_SNIPPED_IMAGES,
// HAS_STRIPPED_METADATA, HAS_JUNK, HAS_ERRORS, NEEDS_NEW_FILE,
// NEEDS_NEW_IDAT, plus the byte totals the trial engine's ceiling and
// the final size comparison both need.
type Stats struct {
	IsPNGFile           bool
	HasPNGDatastream    bool
	HasPNGSignature     bool
	HasDigitalSignature bool
	HasMultipleImages   bool
	HasSnippedImages    bool
	HasStrippedMetadata bool
	HasJunk             bool
	HasErrors           bool
	NeedsNewFile        bool
	NeedsNewIDAT        bool

	InputTotalBytes    int
	InputIDATBytes     int
	InputPLTETRNSBytes int
	OutputIDATBytes    int
}

// Status is what Optimize decided to do with one file.
type Status int

const (
	StatusOptimized Status = iota
	StatusAlreadyOptimized
	StatusWouldOptimize // -no-create: the decision was made but nothing written
)

func (s Status) String() string {
	switch s {
	case StatusOptimized:
		return "optimized"
	case StatusAlreadyOptimized:
		return "already optimized"
	case StatusWouldOptimize:
		return "would optimize (dry run)"
	default:
		return "unknown"
	}
}

// Result is what Optimize returns for one input file.
type Result struct {
	Stats      Stats
	Status     Status
	OutputPath string
}

// FileSink is the filesystem seam the write steps act through: every
// decision the orchestrator makes about -preserve/-backup/-dir/-out/
// -stdout/-no-clobber/-no-create is expressed against this interface, so
// the decision logic is exercised by tests against an in-memory fake
// without touching a real disk (grounded on opng_optimize_file's own
// open/rename/remove seam in original_source/src/opngoptim.c).
type FileSink interface {
	// Create opens path for writing, truncating or creating it.
	Create(path string) (io.WriteCloser, error)
	// Exists reports whether path already exists.
	Exists(path string) bool
	// Rename moves oldpath to newpath (used for -backup).
	Rename(oldpath, newpath string) error
	// Remove deletes path.
	Remove(path string) error
}

// osFileSink is the real, disk-backed FileSink cmd/optipng wires in.
type osFileSink struct{}

// NewOSFileSink returns the FileSink backed by the real filesystem.
func NewOSFileSink() FileSink { return osFileSink{} }

func (osFileSink) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func (osFileSink) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileSink) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (osFileSink) Remove(path string) error {
	return os.Remove(path)
}

// Session carries everything shared across every file a run processes:
// the resolved configuration, the diagnostic sink, the file-system seam,
// and (when -stdout is set) the writer output is redirected to.
type Session struct {
	Config optconfig.Config
	Sink   *diag.Sink
	Files  FileSink
	Stdout io.Writer
}

// New builds a Session. sink and files must not be nil; stdout may be
// nil unless cfg.Stdout is set.
func New(cfg optconfig.Config, sink *diag.Sink, files FileSink, stdout io.Writer) *Session {
	return &Session{Config: cfg, Sink: sink, Files: files, Stdout: stdout}
}

// Optimize runs the full per-file pipeline against the raw bytes
// of one input file named path (path is used only to resolve the output
// location and for -backup; the bytes themselves are what gets decoded).
func (s *Session) Optimize(path string, raw []byte) (Result, error) {
	var stats Stats
	stats.InputTotalBytes = len(raw)

	// Step 1-2: classify signature, decode via the external importer or native, populate
	// stats including input IDAT and PLTE+tRNS sizes.
	img, multi, err := s.decode(raw, &stats)
	if err != nil {
		return Result{Stats: stats}, err
	}

	// Step 3: transforms, forcing NEEDS_NEW_IDAT on any image mutation.
	if err := s.Config.Transform.Validate(); err != nil {
		return Result{Stats: stats}, opngerr.Wrap(opngerr.KindUsage, err, "invalid transform spec")
	}
	stats.HasStrippedMetadata = hasStrippableMetadata(img, s.Config.Transform)
	tApplied := transform.Apply(img, s.Config.Transform)
	if tApplied.Any() {
		stats.NeedsNewIDAT = true
	}

	// Step 4: reductions.
	mask := reduce.Mask(s.Config.Reductions)
	rApplied := reduce.Reduce(img, mask, s.Sink)
	if rApplied.Any() {
		stats.NeedsNewIDAT = true
	}

	// Step 5: interlace change.
	interlaceChanged := false
	if target, ok := resolveInterlace(s.Config.Interlace); ok && target != img.Interlace {
		img.Interlace = target
		interlaceChanged = true
		stats.NeedsNewIDAT = true
	}

	// Step 6: recoverable warnings accumulated during decode/transform/
	// reduce become fatal without -fix.
	stats.HasErrors = len(s.Sink.Warnings()) > 0
	stats.HasJunk = stats.HasErrors
	if stats.HasErrors {
		if s.Config.Fix {
			stats.NeedsNewFile = true
		} else {
			return Result{Stats: stats}, opngerr.Newf(opngerr.KindWarning,
				"%s: %d recoverable warning(s) without -fix", path, len(s.Sink.Warnings()))
		}
	}

	// Step 7: multi-image non-PNG input without -snip aborts; with
	// -snip, only the first image survives (already true of img, since
	// the importer only ever returns the first) and the file changes.
	stats.HasMultipleImages = multi
	if multi && !stats.IsPNGFile {
		if !s.Config.Snip {
			return Result{Stats: stats}, opngerr.Newf(opngerr.KindFormat,
				"%s: input holds multiple images; pass -snip to keep only the first", path)
		}
		stats.HasSnippedImages = true
		stats.NeedsNewFile = true
	}

	// Step 8: digital signature.
	if img.DigitalSignature {
		stats.HasDigitalSignature = true
		if !s.Config.Force {
			return Result{Stats: stats}, opngerr.Newf(opngerr.KindFormat,
				"%s: digitally signed; pass -force to override", path)
		}
		stats.NeedsNewFile = true
	}

	// Step 9: trial search.
	mandatory := s.Config.IDATRecodeMandatory(rApplied.Any() || tApplied.Any(), interlaceChanged, !stats.IsPNGFile)
	var best trial.Best
	if mandatory || !s.Config.NoIDATRecode {
		grid := trial.BuildGrid(trialOptions(s.Config, img), img)
		ceiling := stats.InputIDATBytes + stats.InputPLTETRNSBytes
		if mandatory {
			ceiling = 1<<31 - 1
		}
		found := false
		best, found = trial.Run(img, grid, ceiling, s.Config.Paranoid)
		if !found {
			if mandatory {
				return Result{Stats: stats}, opngerr.Newf(opngerr.KindBug,
					"%s: no viable encoding found under a mandatory recode", path)
			}
			// Recoding was optional and nothing beat the ceiling; keep
			// the original IDAT.
		} else {
			newPLTETRNS := paletteTRNSBytes(img)
			stats.OutputIDATBytes = best.IDATSize
			if mandatory || best.IDATSize+newPLTETRNS < stats.InputIDATBytes+stats.InputPLTETRNSBytes {
				stats.NeedsNewIDAT = true
			}
		}
	}

	outPath := s.resolveOutputPath(path)

	// Step 10: nothing to do.
	if !stats.NeedsNewFile && !stats.NeedsNewIDAT && outPath == path {
		return Result{Stats: stats, Status: StatusAlreadyOptimized, OutputPath: outPath}, nil
	}

	if s.Config.NoCreate {
		return Result{Stats: stats, Status: StatusWouldOptimize, OutputPath: outPath}, nil
	}

	// Step 11: write, via a full rewrite or a byte-copy + IDAT join.
	if err := s.write(path, outPath, raw, img, best, stats); err != nil {
		return Result{Stats: stats}, err
	}

	return Result{Stats: stats, Status: StatusOptimized, OutputPath: outPath}, nil
}

func (s *Session) decode(raw []byte, stats *Stats) (*pngimage.Image, bool, error) {
	peek := raw
	if len(peek) > 12 {
		peek = peek[:12]
	}
	format := importer.Detect(peek)

	if format == importer.FormatNativePNG {
		stats.IsPNGFile = true
		stats.HasPNGSignature = true
		img, err := pngnative.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, false, opngerr.Wrap(opngerr.KindFormat, err, "decode PNG datastream")
		}
		stats.HasPNGDatastream = true
		idat, plteTrns := scanNativeSizes(raw)
		stats.InputIDATBytes = idat
		stats.InputPLTETRNSBytes = plteTrns
		return img, img.APNGFrameCount > 1, nil
	}

	res, _, err := importer.Import(bytes.NewReader(raw), s.Sink)
	if err != nil {
		return nil, false, opngerr.Wrap(opngerr.KindFormat, err, "import foreign image")
	}
	return res.Image, res.MultipleImages, nil
}

// scanNativeSizes sums the payload bytes of every IDAT chunk and of
// PLTE+tRNS, the two quantities the selection rule compares the
// trial engine's result against.
func scanNativeSizes(raw []byte) (idatBytes, plteTrnsBytes int) {
	r := bytes.NewReader(raw)
	if err := pngchunk.ReadSignature(r); err != nil {
		return 0, 0
	}
	cr := pngchunk.NewReader(r)
	for {
		chunk, err := cr.Next()
		if err != nil {
			return idatBytes, plteTrnsBytes
		}
		switch chunk.Code {
		case pngchunk.IDAT:
			idatBytes += len(chunk.Data)
		case pngchunk.PLTE, pngchunk.TRNS:
			plteTrnsBytes += len(chunk.Data)
		case pngchunk.IEND:
			return idatBytes, plteTrnsBytes
		}
	}
}

func paletteTRNSBytes(img *pngimage.Image) int {
	n := 0
	if img.ColorType == pngimage.PaletteColor {
		n += len(img.Palette) * 3
	}
	switch img.Trans.Kind {
	case pngimage.TransPalette:
		n += len(img.Trans.PaletteAlpha)
	case pngimage.TransColorKey:
		if img.ColorType == pngimage.Gray {
			n += 2
		} else {
			n += 6
		}
	}
	return n
}

func hasStrippableMetadata(img *pngimage.Image, ts transform.Spec) bool {
	if !ts.Any() {
		return false
	}
	for _, u := range img.Unknown {
		if u.Code.IsMetadata() && ts.ShouldStrip(u.Code) {
			return true
		}
	}
	return false
}

func resolveInterlace(i optconfig.Interlace) (pngimage.Interlace, bool) {
	switch i {
	case optconfig.InterlaceNone:
		return pngimage.InterlaceNone, true
	case optconfig.InterlaceAdam7:
		return pngimage.InterlaceAdam7, true
	default:
		return 0, false
	}
}

func trialOptions(cfg optconfig.Config, img *pngimage.Image) trial.Options {
	return trial.Options{
		Level:          cfg.OptimLevel,
		HasLevel:       true,
		UserFilters:    rangesetOf(cfg.Filters),
		HasUserFilters: len(cfg.Filters) > 0,
		UserStrategies: rangesetOf(cfg.Strategies),
		HasUserStrats:  len(cfg.Strategies) > 0,
		UserCLevels:    rangesetOf(cfg.CLevels),
		HasUserCLevels: len(cfg.CLevels) > 0,
		UserMLevels:    rangesetOf(cfg.MLevels),
		HasUserMLevels: len(cfg.MLevels) > 0,
		UserWindowBits: cfg.WindowBits,
	}
}

func (s *Session) resolveOutputPath(inputPath string) string {
	switch {
	case s.Config.OutPath != "":
		return s.Config.OutPath
	case s.Config.OutDir != "":
		return filepath.Join(s.Config.OutDir, filepath.Base(inputPath))
	default:
		return inputPath
	}
}

// write performs step 11: a full rewrite when NEEDS_NEW_IDAT, else a
// byte-copy with IDAT joined from the unchanged original, honoring
// -stdout/-backup/-no-clobber along the way.
func (s *Session) write(inputPath, outPath string, raw []byte, img *pngimage.Image, best trial.Best, stats Stats) error {
	if s.Config.Stdout {
		if s.Stdout == nil {
			return opngerr.New(opngerr.KindUsage, "stdout output requested but no writer configured")
		}
		return s.encodeOrCopy(s.Stdout, raw, img, best, stats)
	}

	if s.Config.NoClobber && outPath != inputPath && s.Files.Exists(outPath) {
		return opngerr.Newf(opngerr.KindIO, "%s: output already exists and -no-clobber is set", outPath)
	}

	if s.Config.Backup && outPath == inputPath {
		if err := s.Files.Rename(inputPath, inputPath+".bak"); err != nil {
			return opngerr.Wrap(opngerr.KindIO, err, "back up original before overwrite")
		}
	}

	w, err := s.Files.Create(outPath)
	if err != nil {
		return opngerr.Wrap(opngerr.KindIO, err, "create output file")
	}
	if err := s.encodeOrCopy(w, raw, img, best, stats); err != nil {
		_ = w.Close()
		return err
	}
	return errors.Wrap(w.Close(), "session: close output file")
}

// encodeOrCopy performs step 11's choice. NEEDS_NEW_IDAT is only ever
// set alongside a completed trial (it is set either when the recode was
// mandatory, which always runs a trial, or after a trial found a
// strictly smaller encoding), so best always holds a valid trial result
// here.
func (s *Session) encodeOrCopy(w io.Writer, raw []byte, img *pngimage.Image, best trial.Best, stats Stats) error {
	if stats.NeedsNewIDAT {
		_, err := encoder.Encode(w, img, s.Config.Transform, best.Params, best.IDATSize)
		return errors.Wrap(err, "session: full rewrite")
	}
	err := copypath.Copy(w, bytes.NewReader(raw), s.Config.Transform, stats.InputIDATBytes)
	return errors.Wrap(err, "session: copy path")
}

func rangesetOf(vals []int) rangeset.Set {
	var s rangeset.Set
	for _, v := range vals {
		s = s.Set(v)
	}
	return s
}
