package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/config"
	"github.com/bdougie/annotator/internal/models"
	"github.com/bdougie/annotator/internal/scoring"
)

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var truthPath string
	var predictionsPath string
	var dir string
	var truthDir string
	var threshold float64
	var workers int

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score predicted boxes against ground truth",
		Long: `Score one prediction file against one ground-truth file, or every
<folder>.txt prediction file in --dir against <truth-dir>/<folder>.txt.
Both formats hold one "x_min y_min x_max y_max" box per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if threshold == 0 {
				threshold = cfg.Scoring.IoUThreshold
			}
			if threshold <= 0 || threshold > 1 {
				return fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
			}
			scorer := scoring.NewScorer(threshold)

			switch {
			case dir != "":
				return scoreDirectory(cmd, ctx, cfg, scorer, dir, truthDir, workers)
			case truthPath != "" && predictionsPath != "":
				return scoreFiles(cmd, scorer, truthPath, predictionsPath)
			default:
				return errors.New("provide --truth and --predictions, or --dir")
			}
		},
	}

	cmd.Flags().StringVar(&truthPath, "truth", "", "Ground-truth box file")
	cmd.Flags().StringVar(&predictionsPath, "predictions", "", "Predicted box file")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of <folder>.txt prediction files")
	cmd.Flags().StringVar(&truthDir, "truth-dir", "", "Ground-truth directory (defaults to paths.validation_gts_dir)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "IoU threshold (defaults to scoring.iou_threshold)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel scoring workers (defaults to scoring.workers)")
	return cmd
}

func readBoxFile(path string) ([]models.Box, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	boxes, err := scoring.ParseGroundTruth(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return boxes, nil
}

func scoreFiles(cmd *cobra.Command, scorer scoring.Scorer, truthPath, predictionsPath string) error {
	truth, err := readBoxFile(truthPath)
	if err != nil {
		return err
	}
	predictions, err := readBoxFile(predictionsPath)
	if err != nil {
		return err
	}
	matches := scorer.Matches(truth, predictions)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ground truth: %d  Predictions: %d  Matches: %d\n", len(truth), len(predictions), matches)
	fmt.Fprintf(out, "Score: %.4f\n", scoring.Dice(matches, len(truth), len(predictions)))
	return nil
}

func scoreDirectory(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, scorer scoring.Scorer, dir, truthDir string, workers int) error {
	if truthDir == "" {
		truthDir = cfg.Paths.ValidationGTsDir
	} else {
		expanded, err := config.ExpandPath(truthDir)
		if err != nil {
			return err
		}
		truthDir = expanded
	}
	if workers <= 0 {
		workers = cfg.Scoring.Workers
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return fmt.Errorf("list prediction files: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no .txt prediction files in %s", dir)
	}
	sort.Strings(matches)

	submissions := make([]scoring.Submission, 0, len(matches))
	for _, path := range matches {
		boxes, err := readBoxFile(path)
		if err != nil {
			return err
		}
		submissions = append(submissions, scoring.Submission{
			Folder:      strings.TrimSuffix(filepath.Base(path), ".txt"),
			Predictions: boxes,
		})
	}

	logger, err := ctx.logger()
	if err != nil {
		return err
	}
	batch := scoring.NewBatch(scorer, scoring.NewGroundTruthStore(truthDir), workers, logger)
	results := batch.Run(cmd.Context(), submissions)

	rows := make([][]string, 0, len(results))
	var total float64
	scored := 0
	for _, res := range results {
		if res.Err != nil {
			rows = append(rows, []string{res.Folder, "-", strconv.Itoa(res.Predictions), "-", "error: " + res.Err.Error()})
			continue
		}
		total += res.Score
		scored++
		rows = append(rows, []string{
			res.Folder,
			strconv.Itoa(res.GroundTruth),
			strconv.Itoa(res.Predictions),
			strconv.Itoa(res.Matches),
			fmt.Sprintf("%.4f", res.Score),
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Folder", "Truth", "Predicted", "Matched", "Score"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	if scored > 0 {
		fmt.Fprintf(out, "Mean score over %d clips: %.4f\n", scored, total/float64(scored))
	}
	if scored < len(results) {
		return fmt.Errorf("%d of %d submissions could not be scored", len(results)-scored, len(results))
	}
	return nil
}
