// Command facectl talks to the face recognition backend directly, reading
// images from local files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-gateway/internal/config"
	"github.com/example/face-gateway/internal/faceapi"
)

const usage = `usage: facectl [-url base] <command> [flags]

commands:
  health
  register  -name N -image path [-description D]
  recognize -image path [-threshold T]
  compare   -image1 path -image2 path [-threshold T]
  list
  delete    -id N
`

var errUsage = errors.New("invalid usage")

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], cfg.FaceAPI, logger, os.Stdout, os.Stderr)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, cfg config.FaceAPIConfig, logger *zap.Logger, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("facectl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	baseURL := global.String("url", cfg.BaseURL, "backend base URL")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	cfg.BaseURL = *baseURL

	client := faceapi.NewHTTPClient(cfg, logger)
	defer client.CloseIdleConnections()
	ctx = faceapi.WithRequestID(ctx, uuid.NewString())

	result, err := dispatch(ctx, client, global.Arg(0), global.Args()[1:], stderr)
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", global.Arg(0)), zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("failed to write result", zap.Error(err))
		return 1
	}
	if outcome, ok := result.(faceapi.Outcome); ok && !outcome.Succeeded() {
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, client faceapi.Client, command string, args []string, stderr io.Writer) (any, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch command {
	case "health":
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return client.Health(ctx)

	case "register":
		name := fs.String("name", "", "person name")
		image := fs.String("image", "", "path to image file")
		description := fs.String("description", "", "optional description")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *name == "" || *image == "" {
			return nil, errUsage
		}
		encoded, err := faceapi.EncodeFile(*image)
		if err != nil {
			return nil, err
		}
		return client.Register(ctx, faceapi.RegisterRequest{Name: *name, Image: encoded, Description: *description})

	case "recognize":
		image := fs.String("image", "", "path to image file")
		threshold := fs.Float64("threshold", 0.6, "match threshold in [0,1]")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *image == "" {
			return nil, errUsage
		}
		if *threshold < 0 || *threshold > 1 {
			return nil, fmt.Errorf("threshold %v outside [0,1]", *threshold)
		}
		encoded, err := faceapi.EncodeFile(*image)
		if err != nil {
			return nil, err
		}
		return client.Recognize(ctx, faceapi.RecognizeRequest{Image: encoded, Threshold: threshold})

	case "compare":
		image1 := fs.String("image1", "", "path to first image")
		image2 := fs.String("image2", "", "path to second image")
		threshold := fs.Float64("threshold", 0.6, "match threshold in [0,1]")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *image1 == "" || *image2 == "" {
			return nil, errUsage
		}
		if *threshold < 0 || *threshold > 1 {
			return nil, fmt.Errorf("threshold %v outside [0,1]", *threshold)
		}
		first, err := faceapi.EncodeFile(*image1)
		if err != nil {
			return nil, err
		}
		second, err := faceapi.EncodeFile(*image2)
		if err != nil {
			return nil, err
		}
		return client.Compare(ctx, faceapi.CompareRequest{Image1: first, Image2: second, Threshold: threshold})

	case "list":
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return client.List(ctx)

	case "delete":
		id := fs.Int64("id", 0, "face id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *id <= 0 {
			return nil, errUsage
		}
		return client.Delete(ctx, *id)
	}

	return nil, errUsage
}
