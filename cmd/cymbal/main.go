package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/alecthomas/kingpin.v2"
)

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	baseLogger    = log.NewLogfmtLogger(log.NewSyncWriter(consoleOutput))
	logger        = baseLogger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = withOutput(ctx, os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Symbol resolution for JavaScript stack frames.").UsageWriter(os.Stdout)
	app.Version(version.Print("cymbal"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	serveCmd := app.Command("serve", "Run the resolution service.").Default()
	serveParams := addServeParams(serveCmd)

	resolveCmd := app.Command("resolve", "Resolve the frames of a JSON file and print the result.")
	resolveParams := addResolveParams(resolveCmd)

	symbolDataCmd := app.Command("symbol-data", "Operate on symbol data containers.")
	packCmd := symbolDataCmd.Command("pack", "Pack a minified source and its source map into a container.")
	packParams := addPackParams(packCmd)
	inspectCmd := symbolDataCmd.Command("inspect", "Describe symbol data containers.")
	inspectFiles := inspectCmd.Arg("file", "Container file path.").Required().ExistingFiles()

	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case serveCmd.FullCommand():
		os.Exit(checkError(serve(ctx, serveParams)))
	case resolveCmd.FullCommand():
		os.Exit(checkError(resolve(ctx, resolveParams)))
	case packCmd.FullCommand():
		os.Exit(checkError(pack(ctx, packParams)))
	case inspectCmd.FullCommand():
		for _, file := range *inspectFiles {
			if err := inspect(ctx, file); err != nil {
				os.Exit(checkError(err))
			}
		}
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
