// Command evconv converts particle-collision event files between the
// supported storage back-ends while preserving the canonical event schema.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhep/evconv/internal/convert"
	"github.com/openhep/evconv/pkg/config"
	"github.com/openhep/evconv/pkg/format"
	"github.com/openhep/evconv/pkg/logger"

	// Import all back-ends to register their reader/writer factories.
	_ "github.com/openhep/evconv/pkg/format/arrowipc"
	_ "github.com/openhep/evconv/pkg/format/avro"
	_ "github.com/openhep/evconv/pkg/format/protostream"
	_ "github.com/openhep/evconv/pkg/format/roottree"
	_ "github.com/openhep/evconv/pkg/format/sqlite"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "evconv",
		Short: "evconv - event file format converter",
		Long: `evconv converts particle-collision event files between storage
back-ends (sqlite, arrow-row, arrow-col, avro, proto, root) while
preserving the canonical event schema bit-for-bit.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("evconv v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "formats",
		Short: "List readable and writable formats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Readable formats:")
			for _, f := range format.ListReaders() {
				fmt.Printf("  - %s\n", f)
			}
			fmt.Println("\nWritable formats:")
			for _, f := range format.ListWriters() {
				fmt.Printf("  - %s\n", f)
			}
		},
	})

	var (
		inputPath      string
		outputPath     string
		fromFormat     string
		toFormat       string
		compressSource bool
		compressDest   bool
		codec          string
		configFile     string
		logLevel       string
	)

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an event file from one format to another",
		Long: `Convert an event file from one storage back-end to another.

The source and destination formats are chosen independently, enabling
any-to-any conversion. The root reader also accepts a comma-separated
list of files, read as one chain.

Example:
  evconv convert -i b2hhh.root --from root -o b2hhh.sqlite --to sqlite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel, Encoding: "console"}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := resolveConfig(configFile, inputPath, outputPath, fromFormat, toFormat,
				compressSource, compressDest, codec)
			if err != nil {
				return err
			}
			return runConversion(cmd.Context(), cfg)
		},
	}

	convertCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Source path")
	convertCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path")
	convertCmd.Flags().StringVar(&fromFormat, "from", "", "Source format")
	convertCmd.Flags().StringVar(&toFormat, "to", "", "Destination format")
	convertCmd.Flags().BoolVar(&compressSource, "compressed-input", false, "Source was written in compressed mode (avro, proto, root)")
	convertCmd.Flags().BoolVar(&compressDest, "compress", false, "Write the destination in compressed mode (avro, proto, root)")
	convertCmd.Flags().StringVar(&codec, "codec", "", "Message-stream filter codec (gzip or zstd)")
	convertCmd.Flags().StringVar(&configFile, "config", "", "JSON config file replacing the endpoint flags")
	convertCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(convertCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig builds the run configuration from either the config file
// or the endpoint flags.
func resolveConfig(configFile, input, output, from, to string, compressSource, compressDest bool, codec string) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}

	cfg := &config.Config{
		Source: config.Endpoint{
			Format:     from,
			Path:       input,
			Compressed: compressSource,
			Codec:      codec,
		},
		Destination: config.Endpoint{
			Format:     to,
			Path:       output,
			Compressed: compressDest,
			Codec:      codec,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runConversion constructs the reader and writer through the factory and
// runs the sequential driver.
func runConversion(ctx context.Context, cfg *config.Config) error {
	srcFormat, err := cfg.Source.ParseFormat()
	if err != nil {
		return err
	}
	dstFormat, err := cfg.Destination.ParseFormat()
	if err != nil {
		return err
	}

	reader, err := format.NewReader(srcFormat, cfg.Source.Options())
	if err != nil {
		return err
	}
	writer, err := format.NewWriter(dstFormat, cfg.Destination.Options())
	if err != nil {
		return err
	}

	log := logger.With(
		zap.String("from", srcFormat.String()),
		zap.String("to", dstFormat.String()))

	_, err = convert.New(reader, writer, cfg.Source.Path, cfg.Destination.Path, log).Run(ctx)
	return err
}
