package main

import (
	"fmt"
	"os"
	"strconv"

	vfxbmedia "github.com/Video-FX-Bot/VFXB-App-Frontend-sub001"
	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/internal/errutil"
	"github.com/spf13/cobra"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <url> <start> <end>",
	Short: "Preload a byte range of a media resource",
	Long:  `chunk issues a ranged request for the inclusive byte span [start, end] and writes the chunk to stdout or a file. The server must support partial content.`,
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		start, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			errutil.ReportError(err, "Invalid start byte", "value", args[1])
			os.Exit(1)
		}
		end, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			errutil.ReportError(err, "Invalid end byte", "value", args[2])
			os.Exit(1)
		}

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			errutil.ReportError(err, "Failed to get output flag")
			os.Exit(1)
		}

		session := vfxbmedia.New(vfxbmedia.Config{})
		defer session.Close()

		data, err := session.Loader.PreloadChunk(cmd.Context(), url, start, end)
		if err != nil {
			errutil.ReportError(err, "Chunk preload failed", "url", url, "start", start, "end", end)
			os.Exit(1)
		}

		if output != "" {
			if err := os.WriteFile(output, data, 0644); err != nil {
				errutil.ReportError(err, "Failed to write output file", "path", output)
				os.Exit(1)
			}
		} else {
			if _, err := os.Stdout.Write(data); err != nil {
				errutil.ReportError(err, "Failed to write to stdout")
				os.Exit(1)
			}
		}

		fmt.Fprintf(os.Stderr, "preloaded %d bytes\n", len(data))
	},
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
}
