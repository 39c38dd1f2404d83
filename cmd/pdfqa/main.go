package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
)

const (
	ProgramName   = "pdfqa"
	Version       = "v0.1.0"
	RepositoryUrl = "github.com/alan-mat/pdfqa"
)

type serveCmd struct{}

type workCmd struct{}

type indexCmd struct {
	Path         string `arg:"positional,required" help:"PDF document to index"`
	ChunkSize    *int   `arg:"--chunk-size" help:"maximum characters per chunk"`
	ChunkOverlap *int   `arg:"--chunk-overlap" help:"characters shared by neighbouring chunks"`
}

type corporaCmd struct{}

type rmCmd struct {
	IDs []string `arg:"positional,required" help:"ids of stored corpora to remove"`
}

type Remote struct {
	Host string `arg:"--host,-H" default:"localhost" help:"server host address"`
	Port uint   `arg:"--port,-p" default:"50051" help:"server port"`
}

func (r Remote) target() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type loadCmd struct {
	Remote
	Path         string `arg:"positional,required" help:"PDF document on the server's filesystem"`
	ChunkSize    int    `arg:"--chunk-size" help:"maximum characters per chunk"`
	ChunkOverlap *int   `arg:"--chunk-overlap" help:"characters shared by neighbouring chunks"`
}

type askCmd struct {
	Remote
	Question     string `arg:"positional,required" help:"question about the loaded document"`
	K            int    `arg:"-k" help:"number of chunks to retrieve"`
	SystemPrompt string `arg:"--system-prompt" help:"replace the default system prompt"`
}

type args struct {
	Config string `arg:"--config,-c,env:PDFQA_CONFIG" help:"path to a YAML config file"`

	Serve   *serveCmd   `arg:"subcommand:serve" help:"start the gRPC server with an in-process build worker"`
	Work    *workCmd    `arg:"subcommand:work" help:"start a standalone build worker"`
	Index   *indexCmd   `arg:"subcommand:index" help:"build and store a corpus from a PDF"`
	Corpora *corporaCmd `arg:"subcommand:corpora" help:"list stored corpora"`
	Rm      *rmCmd      `arg:"subcommand:rm" help:"remove stored corpora"`
	Load    *loadCmd    `arg:"subcommand:load" help:"build a corpus on a running server"`
	Ask     *askCmd     `arg:"subcommand:ask" help:"ask a running server a question"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return fmt.Sprintf("For more information visit %s", RepositoryUrl)
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: ProgramName}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env file: %v", err)
	}

	conf, err := ReadConfig(args.Config)
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	level, err := conf.logLevel()
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := p.Subcommand().(type) {
	case *serveCmd:
		err = runServe(ctx, conf)
	case *workCmd:
		err = runWork(ctx, conf)
	case *indexCmd:
		err = runIndex(ctx, conf, cmd)
	case *corporaCmd:
		err = runCorpora(ctx, conf)
	case *rmCmd:
		err = runRemove(ctx, conf, cmd)
	case *loadCmd:
		err = runLoad(ctx, cmd)
	case *askCmd:
		err = runAsk(ctx, cmd)
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}

	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
