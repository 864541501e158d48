// Command normalize runs the photo pipeline on a local file and writes the
// 800x600 JPEG next to it, optionally publishing it to object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flockdir/photoflow/internal/config"
	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/logging"
	"github.com/flockdir/photoflow/internal/pipeline"
	"github.com/flockdir/photoflow/internal/publish"
	"github.com/flockdir/photoflow/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns the process exit code so deferred runtime shutdown always runs.
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	input := fs.String("in", "", "path to a JPEG or PNG image")
	outDir := fs.String("out", "", "output directory (defaults to the input's directory)")
	doPublish := fs.Bool("publish", false, "upload the result to the configured object storage")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: normalize -in photo.jpg [-out dir] [-publish]")
		return 2
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.New("normalize", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Startup(); err != nil {
		logger.Errorf("image runtime startup failed: %v", err)
		return 1
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor()
	if err != nil {
		logger.Errorf("initialize pipeline processor: %v", err)
		return 1
	}

	in, err := pipeline.LocalFileFetcher{}.Fetch(ctx, *input)
	if err != nil {
		logger.Errorf("rejected input=%s reason=%s: %s", *input, domain.RejectReason(err), domain.UserMessage(err))
		return 1
	}

	out, err := processor.Normalize(ctx, in)
	if err != nil {
		logger.Errorf("normalize failed input=%s reason=%s: %v", *input, domain.RejectReason(err), err)
		return 1
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(*input)
	}
	name := filepath.Base(*input)
	name = name[:len(name)-len(filepath.Ext(name))] + "-800x600"

	written, err := pipeline.LocalFileEmitter{OutputDir: dir}.Emit(ctx, name, out)
	if err != nil {
		logger.Errorf("write output failed: %v", err)
		return 1
	}
	logger.Infof("wrote %s size=%dx%d bytes=%d", written, out.Width, out.Height, len(out.Data))

	if !*doPublish {
		return 0
	}

	objects, err := storage.New(ctx, storage.Config{
		Driver:        cfg.Storage.Driver,
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		logger.Errorf("object storage setup failed: %v", err)
		return 1
	}

	res, err := publish.NewPublisher(objects, cfg.Storage.KeyPrefix, logger).PublishOrPlaceholder(ctx, out.Data)
	if err != nil {
		logger.Warnf("publish failed, listing keeps placeholder url=%s", res.URL)
	}
	fmt.Fprintln(stdout, res.URL)
	return 0
}
