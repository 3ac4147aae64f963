package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/dispatch"
	"github.com/bdougie/annotator/internal/service"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var annotator string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show block saturation, or one annotator's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withService(cmd.Context(), func(svc *service.Service) error {
				if strings.TrimSpace(annotator) != "" {
					return printAnnotatorProgress(cmd, svc, strings.TrimSpace(annotator), dispatch.ResumeStrategy(cfg.Distribution.Resume))
				}
				status, err := svc.Progress(cmd.Context(), cfg.Distribution.AnnotatorsPerClip)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(status))
				open := 0
				for _, st := range status {
					if st.Open() {
						open++
					}
					rows = append(rows, []string{
						strconv.Itoa(st.Block.Index),
						fmt.Sprintf("%d-%d", st.Block.FirstGlobal(), st.Block.LastGlobal()),
						st.FirstFolder,
						fmt.Sprintf("%d/%d", st.Saturation, st.Target),
						strconv.Itoa(st.Reserved),
						yesNo(st.Open()),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Block", "Global", "First folder", "Saturation", "Reserved", "Open"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintf(out, "%d of %d blocks open (saturation: %s)\n", open, len(status), cfg.Distribution.Saturation)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&annotator, "annotator", "a", "", "Show progress for one annotator")
	return cmd
}

func printAnnotatorProgress(cmd *cobra.Command, svc *service.Service, annotator string, strategy dispatch.ResumeStrategy) error {
	progress, err := svc.AnnotatorProgress(cmd.Context(), annotator)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(progress) == 0 {
		fmt.Fprintf(out, "%s has not annotated any clips\n", annotator)
		return nil
	}
	rows := make([][]string, 0, len(progress))
	for _, p := range progress {
		rows = append(rows, []string{
			strconv.Itoa(p.Block),
			fmt.Sprintf("%d/%d", len(p.Annotated), p.Size),
			strconv.Itoa(p.Count),
			yesNo(p.Complete(strategy)),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Block", "Clips", "Records", "Complete"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}
