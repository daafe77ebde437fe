// Command predict runs a trained model archive against a JSON-lines input
// file (or a dataset-reader input) and emits one prediction per record.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dbhasin1/allennlp/internal/archive"
	"github.com/Dbhasin1/allennlp/internal/cache"
	"github.com/Dbhasin1/allennlp/internal/config"
	"github.com/Dbhasin1/allennlp/internal/device"
	"github.com/Dbhasin1/allennlp/internal/logging"
	"github.com/Dbhasin1/allennlp/internal/metrics"
	"github.com/Dbhasin1/allennlp/internal/predict"
	"github.com/Dbhasin1/allennlp/internal/predictor"
	"github.com/Dbhasin1/allennlp/internal/tracing"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "predict <archive-file> <input-file>",
		Short:         "Use a trained model to make predictions",
		Long:          "Run the specified model against a JSON-lines input file. An input file of - reads from standard input.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.String("output-file", "", "path to output file")
	flags.String("weights-file", "", "a path that overrides which weights file to use")
	flags.Int("batch-size", 1, "the batch size to use for processing")
	flags.Bool("silent", false, "do not print output to stdout")
	flags.Int("cuda-device", -1, "id of GPU to use (if any)")
	flags.Bool("use-dataset-reader", false, "use the dataset reader of the original model to load records")
	flags.String("dataset-reader-choice", "validation", "which model dataset reader to use if --use-dataset-reader is set (train or validation)")
	flags.String("compression-type", "", "the compressed format of the input file (gz, bz2 or lzma)")
	flags.String("multitask-head", "", "name of the model head to use when predicting with a multitask dataset reader")
	flags.StringP("overrides", "o", "", "a JSON structure used to override the archive configuration, e.g. '{\"engine.output_dim\": 4}'")
	flags.String("predictor", "", "optionally specify a specific predictor to use")
	flags.String("predictor-args", "", "an optional JSON structure used to provide additional parameters to the predictor")
	flags.Bool("file-friendly-logging", false, "plain log output without terminal escapes")
	flags.String("cache-addr", "", "optional redis address for memoizing predictions between runs")
	flags.Int("metrics-port", 0, "expose prometheus metrics on this port while the run is active (0 disables)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags(), args)
	if err != nil {
		return err
	}

	log := logging.New(cfg.FileFriendlyLogging)

	// No console and no file means nothing would ever be emitted; bail out
	// before loading the model.
	if cfg.Silent && cfg.OutputFile == "" {
		log.Warn().Msg("--silent specified without --output-file")
		log.Warn().Msg("exiting early because no output will be created")
		return nil
	}

	if tracing.Enabled() {
		shutdown, err := tracing.Init()
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	if err := device.Check(cfg.CUDADevice); err != nil {
		return err
	}

	log.Info().Str("archive", cfg.ArchiveFile).Msg("loading model archive")
	arch, err := archive.Load(cfg.ArchiveFile, cfg.WeightsFile, cfg.Overrides)
	if err != nil {
		return err
	}
	defer arch.Close()

	extraArgs, err := cfg.ExtraArgs()
	if err != nil {
		return err
	}

	p, err := predictor.FromArchive(arch, cfg.PredictorName, cfg.DatasetReaderChoice, cfg.CUDADevice, extraArgs)
	if err != nil {
		return err
	}
	defer p.Close()

	if cfg.CacheAddr != "" {
		store, err := cache.New(cfg.CacheAddr)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info().Str("addr", cfg.CacheAddr).Msg("prediction cache enabled")
		p = predictor.NewCached(p, store)
	}

	if cfg.MetricsPort > 0 {
		server := metrics.StartServer(cfg.MetricsPort)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	}

	manager, err := predict.New(p, cfg, log)
	if err != nil {
		return err
	}
	return manager.Run(cmd.Context())
}
