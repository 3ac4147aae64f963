package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/scoring"
	"github.com/bdougie/annotator/internal/service"
)

func newBoxesCommand(ctx *commandContext) *cobra.Command {
	var globalIndex int
	var folder string
	var boxFlag string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "List stored boxes of a clip closest to a query box",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseBox(boxFlag)
			if err != nil {
				return err
			}
			folder = strings.TrimSpace(folder)
			if (globalIndex == 0) == (folder == "") {
				return errors.New("exactly one of --clip or --folder is required")
			}
			return ctx.withService(cmd.Context(), func(svc *service.Service) error {
				if folder != "" {
					clip, ok := svc.Corpus().Lookup(folder)
					if !ok {
						return fmt.Errorf("no clip folder %q in %s", folder, svc.Corpus().Root())
					}
					globalIndex = clip.Index + 1
				}
				boxes, err := svc.SimilarBoxes(cmd.Context(), globalIndex, query, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, boxes)
				}

				out := cmd.OutOrStdout()
				if len(boxes) == 0 {
					fmt.Fprintf(out, "No boxes stored for clip %d\n", globalIndex)
					return nil
				}
				rows := make([][]string, 0, len(boxes))
				for i, b := range boxes {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						formatBox(b),
						fmt.Sprintf("%.3f", scoring.IoU(query, b)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Rank", "Box", "IoU"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&globalIndex, "clip", 0, "1-based global clip index")
	cmd.Flags().StringVar(&folder, "folder", "", "Clip folder name, instead of --clip")
	cmd.Flags().StringVar(&boxFlag, "box", "", "Query box as x_min,y_min,x_max,y_max")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum boxes to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the boxes as JSON")
	_ = cmd.MarkFlagRequired("box")
	return cmd
}

func parseBox(value string) (models.Box, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return models.Box{}, fmt.Errorf("box %q: expected x_min,y_min,x_max,y_max", value)
	}
	var coords [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return models.Box{}, fmt.Errorf("box %q: %w", value, err)
		}
		coords[i] = v
	}
	return models.Box{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}, nil
}

func formatBox(b models.Box) string {
	return fmt.Sprintf("[%g, %g, %g, %g]", b.XMin, b.YMin, b.XMax, b.YMax)
}
