package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/service"
)

func newNextCommand(ctx *commandContext) *cobra.Command {
	var annotator string
	var validation bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the clips an annotator would be served next",
		RunE: func(cmd *cobra.Command, args []string) error {
			annotator = strings.TrimSpace(annotator)
			if annotator == "" && !validation {
				return errors.New("--annotator is required")
			}
			return ctx.withService(cmd.Context(), func(svc *service.Service) error {
				var (
					assignment *models.Assignment
					err        error
				)
				if validation {
					assignment, err = svc.NextValidation(cmd.Context())
				} else {
					assignment, err = svc.NextWork(cmd.Context(), annotator)
				}
				if errors.Is(err, service.ErrExhausted) {
					fmt.Fprintf(cmd.OutOrStdout(), "No work left for %s\n", annotator)
					return nil
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, assignment)
				}
				printAssignment(cmd, assignment)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&annotator, "annotator", "a", "", "Annotator ID")
	cmd.Flags().BoolVar(&validation, "validation", false, "Pick a validation clip instead")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the assignment as JSON")
	return cmd
}

func printAssignment(cmd *cobra.Command, a *models.Assignment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Block: %d  Resumed: %s  Start index: %d  Clips: %d\n",
		a.Block, yesNo(a.Resumed), a.StartIndex, a.TotalClips)

	rows := make([][]string, 0, len(a.Clips))
	for _, clip := range a.Clips {
		rows = append(rows, []string{strconv.Itoa(clip.Index), strconv.Itoa(clip.Index + 1), clip.Folder})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Index", "Global", "Folder"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft},
	))
}
