package main

import (
	"fmt"
	"os"
	"time"

	vfxbmedia "github.com/Video-FX-Bot/VFXB-App-Frontend-sub001"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/internal/errutil"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/stream"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Progressively download a media resource",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		output := viper.GetString("output")
		rateLimit := viper.GetInt64("rate-limit")
		timeout := viper.GetDuration("fetch-timeout")
		chunkSize := viper.GetInt("chunk-size")

		session := vfxbmedia.New(vfxbmedia.Config{
			BytesPerSec:   rateLimit,
			StreamTimeout: timeout,
			ChunkSize:     chunkSize,
		})
		defer session.Close()

		bar := progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprint(os.Stderr, "\n"); err != nil {
					errutil.LogMsg(err, "Failed to print newline to stderr")
				}
			}),
		)

		var last int64
		body, err := session.Loader.LoadProgressive(cmd.Context(), url, func(p stream.Progress) {
			if p.Total > 0 && bar.GetMax64() != p.Total {
				bar.ChangeMax64(p.Total)
			}
			_ = bar.Add64(p.Loaded - last)
			last = p.Loaded
		})
		if err != nil {
			errutil.ReportError(err, "Fetch failed", "url", url)
			os.Exit(1)
		}

		if output != "" {
			if err := os.WriteFile(output, body, 0644); err != nil {
				errutil.ReportError(err, "Failed to write output file", "path", output)
				os.Exit(1)
			}
		} else {
			if _, err := os.Stdout.Write(body); err != nil {
				errutil.ReportError(err, "Failed to write to stdout")
				os.Exit(1)
			}
		}

		stats := session.Stats()
		fmt.Fprintf(os.Stderr, "fetched %d bytes (tracked memory: %d/%d)\n",
			len(body), stats.Memory.Used, stats.Memory.Limit)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	fetchCmd.Flags().Int64("rate-limit", 0, "Bandwidth limit in bytes/sec (0 = unlimited)")
	fetchCmd.Flags().Duration("fetch-timeout", 0, "Per-request timeout (0 = none)")
	fetchCmd.Flags().Int("chunk-size", 0, "Read chunk size in bytes")

	bindFlags(fetchCmd.Flags(), "output", "rate-limit", "fetch-timeout", "chunk-size")
}
