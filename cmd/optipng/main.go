// Command optipng is the thin CLI entry point collaborator: it turns argv into an optconfig.Config and
// hands each path to internal/session, one file at a time. Flag syntax
// itself is not interpreted beyond recognizing the handful of options
// exercised here; a full -f/-zs/-zc/-zm rangeset grammar belongs to a
// real command-line layer this package intentionally does not implement.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/optipng-go/optipng/internal/diag"
	"github.com/optipng-go/optipng/internal/opngerr"
	"github.com/optipng-go/optipng/internal/optconfig"
	"github.com/optipng-go/optipng/internal/session"
)

// parseArgs recognizes the handful of boolean and value flags the
// orchestrator's decision logic actually branches on;
// anything resembling a rangeset flag (-f/-zs/-zc/-zm/-zw) or the
// -strip/-protect/-reset/-set transform grammar is deliberately not
// parsed here, since flag syntax is the out-of-scope collaborator this
// command only stands in for.
func parseArgs(args []string) (optconfig.Config, []string, error) {
	cfg := optconfig.Default()
	var paths []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-backup":
			cfg.Backup = true
		case a == "-fix":
			cfg.Fix = true
		case a == "-force":
			cfg.Force = true
		case a == "-no-clobber":
			cfg.NoClobber = true
		case a == "-no-create":
			cfg.NoCreate = true
		case a == "-paranoid":
			cfg.Paranoid = true
		case a == "-preserve":
			cfg.Preserve = true
		case a == "-snip":
			cfg.Snip = true
		case a == "-stdout":
			cfg.Stdout = true
		case a == "-nb":
			cfg.Reductions &^= optconfig.ReduceBitDepth
		case a == "-nc":
			cfg.Reductions &^= optconfig.ReduceColor
		case a == "-np":
			cfg.Reductions &^= optconfig.ReducePalette
		case a == "-nz":
			cfg.NoIDATRecode = true
		case a == "-dir":
			i++
			if i >= len(args) {
				return cfg, nil, opngerr.New(opngerr.KindUsage, "-dir requires an argument")
			}
			cfg.OutDir = args[i]
		case a == "-out":
			i++
			if i >= len(args) {
				return cfg, nil, opngerr.New(opngerr.KindUsage, "-out requires an argument")
			}
			cfg.OutPath = args[i]
		case a == "-o":
			i++
			if i >= len(args) {
				return cfg, nil, opngerr.New(opngerr.KindUsage, "-o requires an argument")
			}
			level, err := strconv.Atoi(args[i])
			if err != nil {
				return cfg, nil, opngerr.Newf(opngerr.KindUsage, "invalid -o level %q", args[i])
			}
			cfg.OptimLevel = level
		case len(a) > 2 && a[0] == '-' && a[1] == 'o':
			level, err := strconv.Atoi(a[2:])
			if err != nil {
				return cfg, nil, opngerr.Newf(opngerr.KindUsage, "invalid -o level %q", a)
			}
			cfg.OptimLevel = level
		case len(a) > 0 && a[0] == '-':
			return cfg, nil, opngerr.Newf(opngerr.KindUsage, "unrecognized option %q", a)
		default:
			paths = append(paths, a)
		}
	}

	if err := cfg.Transform.Validate(); err != nil {
		return cfg, nil, opngerr.Wrap(opngerr.KindUsage, err, "invalid transform configuration")
	}
	return cfg, paths, nil
}

// sysexits-style exit codes, plus 2 for "errors found but not fixed".
const (
	exitOK       = 0
	exitNotFixed = 2
	exUsage      = 64
	exDataErr    = 65
	exSoftware   = 70
	exIOErr      = 74
)

// exitCode maps a tagged error to the process exit status.
func exitCode(err error) int {
	switch opngerr.KindOf(err) {
	case opngerr.KindUsage:
		return exUsage
	case opngerr.KindFormat:
		return exDataErr
	case opngerr.KindWarning:
		return exitNotFixed
	case opngerr.KindIO:
		return exIOErr
	default:
		return exSoftware
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, paths, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exUsage
	}
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "optipng: no input files")
		return exUsage
	}

	log, _ := zap.NewProduction()
	if log == nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	worst := exitOK
	for _, path := range paths {
		code := optimizeOne(cfg, path, log, stdout, stderr)
		if code > worst {
			worst = code
		}
	}
	return worst
}

func optimizeOne(cfg optconfig.Config, path string, log *zap.Logger, stdout, stderr io.Writer) int {
	sink := diag.NewSink(log.With(zap.String("file", path)))
	sess := session.New(cfg, sink, session.NewOSFileSink(), stdout)

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "optipng: %s: %v\n", path, err)
		return exIOErr
	}

	result, err := sess.Optimize(path, raw)
	if err != nil {
		fmt.Fprintf(stderr, "optipng: %s: %v\n", path, err)
		return exitCode(err)
	}

	// Status goes to stderr so -stdout keeps the PNG datastream clean.
	fmt.Fprintf(stderr, "%s: %s (%s)\n", path, result.Status, result.OutputPath)
	return exitOK
}
