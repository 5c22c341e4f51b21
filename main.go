package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/pkg/quoteoverlay"
)

var (
	rootCmd = &cobra.Command{
		Use:   "quote-overlay",
		Short: "Burn quotes into videos",
		Long: `quote-overlay writes each quote from a CSV file onto every frame of each
video in an input directory, producing one video per (video, quote) pair with
the original audio kept.

Layout under the base directory:
  video-input/    source videos (*.mp4)
  video-output/   annotated videos
  quotes.csv      columns "frase" and "autor", ISO-8859-1 encoded

Examples:
  # Create the layout and example files in the current directory
  quote-overlay bootstrap

  # Annotate every video with every quote
  quote-overlay run --base-dir ./media --transparency 0.7`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Annotate every input video with every quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}

			report, err := quoteoverlay.Run(cmd.Context(), opts)
			if report != nil && len(report.Pairs) > 0 {
				fmt.Fprint(cmd.OutOrStdout(), report.Render())
			}
			if err != nil {
				return err
			}
			return report.Err()
		},
	}

	bootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the input/output directories, example quotes, font and example video",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}

			layout, err := quoteoverlay.Bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}

			font := layout.FontPath
			if layout.FontFallback {
				font = "built-in"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Input:  %s\nOutput: %s\nQuotes: %s\nFont:   %s\n",
				layout.InputDir, layout.OutputDir, layout.QuotesFile, font)
			return nil
		},
	}
)

// optionsFromFlags loads the config file, if any, and applies the flags the
// user set on top of it.
func optionsFromFlags(cmd *cobra.Command) (*config.Options, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	baseDir, _ := flags.GetString("base-dir")

	var opts *config.Options
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		opts = loaded
	} else {
		opts = config.Default(baseDir)
	}

	stringFlags := map[string]*string{
		"input":  &opts.InputDir,
		"output": &opts.OutputDir,
		"quotes": &opts.QuotesFile,
		"font":   &opts.FontPath,
		"ffmpeg": &opts.FFmpegPath,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("transparency") {
		opts.Transparency, _ = flags.GetFloat64("transparency")
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		if err := opts.SetProcessTimeout(timeout); err != nil {
			return nil, err
		}
	}
	if flags.Changed("verbose") {
		opts.Verbose, _ = flags.GetBool("verbose")
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (.yaml, .yml or .toml)")
	flags.StringP("base-dir", "b", ".", "Directory holding video-input/, video-output/, quotes.csv and the font")
	flags.StringP("input", "i", "", "Input video directory (default <base-dir>/video-input)")
	flags.StringP("output", "o", "", "Output video directory (default <base-dir>/video-output)")
	flags.StringP("quotes", "q", "", "Quotes CSV file (default <base-dir>/quotes.csv)")
	flags.String("font", "", "TrueType font file (default <base-dir>/DejaVuSans-Bold.ttf)")
	flags.String("ffmpeg", config.DefaultFFmpegPath, "ffmpeg executable")
	flags.Float64P("transparency", "t", config.DefaultTransparency, "Text opacity, from 0 (invisible) to 1 (solid)")
	flags.Duration("timeout", config.DefaultProcessTimeout, "Time limit for annotating one video (must be positive)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.MarkFlagsMutuallyExclusive("config", "base-dir")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
