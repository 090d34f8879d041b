package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/ocr"
)

func ocrFileAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("ファイルのパスを指定してください")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := ocr.InspectDocument(data)
	if err != nil {
		return err
	}

	app, err := newAppContext("cli")
	if err != nil {
		return err
	}
	defer app.Close()

	var extractor ocr.Extractor
	if cmd.Bool("mock") || app.cfg.MockAWS {
		extractor = ocr.NewMockExtractor()
	} else {
		extractor, err = ocr.NewTextract(ctx, app.cfg.AWSRegion, app.cfg.TextractS3Bucket)
		if err != nil {
			return err
		}
	}

	lines, err := extractor.ExtractBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	app.logger.Info("document extracted", "path", path, "mime", info.MIME, "bytes", info.Size, "lines", len(lines))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Text", "Confidence")
	for i, l := range lines {
		table.Append(fmt.Sprintf("%d", i+1), l.Text, fmt.Sprintf("%.1f", l.Confidence))
	}
	table.Render()
	return nil
}
