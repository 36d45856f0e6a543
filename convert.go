package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jupark12/docshift/config"
	"github.com/jupark12/docshift/logging"
	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/pipeline"
	"github.com/jupark12/docshift/store"
)

var (
	convertOutput  string
	convertNoColor bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a local PDF or DOCX file once and write the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output path (default: input name with the converted extension)")
	convertCmd.Flags().BoolVar(&convertNoColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.AppEnv, cfg.LogLevel)
	ctx := cmd.Context()

	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	enhancer, closeEnhancer, err := openEnhancer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEnhancer()

	docs := store.NewMemoryStore()
	p := pipeline.New(pipeline.Options{
		Store:       docs,
		Enhancer:    enhancer,
		StepTimeout: cfg.StepTimeout,
		Logger:      logger,
	})

	if convertNoColor {
		color.NoColor = true
	}
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " converting " + filepath.Base(input)
	spin.Start()
	doc, err := p.Submit(ctx, data, filepath.Base(input))
	spin.Stop()
	if err != nil {
		return err
	}
	if doc.Status != models.StatusCompleted {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "conversion of %s failed\n", input)
		return errors.New(doc.Error)
	}

	payload, err := docs.GetPayload(ctx, doc.ID)
	if err != nil {
		return err
	}

	out := convertOutput
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + "." + string(doc.ConvertedFormat)
	}
	if err := os.WriteFile(out, payload, 0o644); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (%d bytes)\n", green("done"), input, out, len(payload))
	return nil
}
