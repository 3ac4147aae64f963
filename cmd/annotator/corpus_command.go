package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/corpus"
	"github.com/bdougie/annotator/internal/service"
)

func newCorpusCommand(ctx *commandContext) *cobra.Command {
	var validation bool
	var frames bool

	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "List the clips of the corpus with their blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.VideosDir
			perBlock := cfg.Distribution.ClipsPerBlock
			if validation {
				root = cfg.Paths.ValidationVideosDir
				perBlock = 1
			}

			ix, err := corpus.Enumerate(root, service.Layout(cfg), perBlock)
			if err != nil {
				return err
			}

			headers := []string{"Index", "Folder", "Block"}
			aligns := []columnAlignment{alignRight, alignLeft, alignRight}
			if frames {
				headers = append(headers, "Frames")
				aligns = append(aligns, alignRight)
			}

			rows := make([][]string, 0, ix.Len())
			for _, clip := range ix.Clips() {
				block, _ := corpus.Locate(clip.Index, perBlock)
				blockLabel := strconv.Itoa(block)
				if block >= ix.NumBlocks() {
					blockLabel = "-"
				}
				row := []string{strconv.Itoa(clip.Index), clip.Folder, blockLabel}
				if frames {
					count, err := ix.FrameCount(clip.Index)
					if err != nil {
						return err
					}
					row = append(row, strconv.Itoa(count))
				}
				rows = append(rows, row)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "%d clips in %s, %d full blocks of %d\n", ix.Len(), ix.Root(), ix.NumBlocks(), perBlock)
			return nil
		},
	}

	cmd.Flags().BoolVar(&validation, "validation", false, "List the validation corpus")
	cmd.Flags().BoolVar(&frames, "frames", false, "Count frames per clip")
	cmd.AddCommand(newCorpusImportCommand(ctx))
	return cmd
}

func newCorpusImportCommand(ctx *commandContext) *cobra.Command {
	var validation bool
	var fps float64
	var ffmpeg string

	cmd := &cobra.Command{
		Use:   "import VIDEO...",
		Short: "Extract video files into clip folders with ffmpeg",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Paths.VideosDir
			if validation {
				root = cfg.Paths.ValidationVideosDir
			}
			extractor := corpus.Extractor{FFmpeg: ffmpeg, FPS: fps, Layout: service.Layout(cfg)}

			out := cmd.OutOrStdout()
			skipped := 0
			for _, video := range args {
				dir, err := extractor.Extract(cmd.Context(), video, root)
				if errors.Is(err, corpus.ErrClipExists) {
					fmt.Fprintf(out, "Skipped %s: %s already has frames\n", video, dir)
					skipped++
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Extracted %s to %s\n", video, dir)
			}
			fmt.Fprintf(out, "%d imported, %d skipped\n", len(args)-skipped, skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&validation, "validation", false, "Import into the validation corpus")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Sample frames at this rate (0 keeps every frame)")
	cmd.Flags().StringVar(&ffmpeg, "ffmpeg", "", "Path to the ffmpeg binary")
	return cmd
}
