package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/config"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/nlp"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/ocr"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/pipeline"
)

func workerAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext("worker")
	if err != nil {
		return err
	}
	defer app.Close()

	stage, _, err := app.stageQueue(cmd.String("stage"))
	if err != nil {
		return err
	}
	log := app.logger.With("stage", string(stage))

	processor, err := buildProcessor(ctx, app.cfg, stage)
	if err != nil {
		return err
	}
	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	broker, err := app.openBroker(ctx)
	if err != nil {
		return err
	}

	w, err := pipeline.NewWorker(processor, pipeline.Options{
		Store:           store,
		Publisher:       broker,
		Queues:          app.topology(),
		MaxRetries:      app.cfg.JobMaxRetries,
		MaxRedeliveries: app.cfg.JobMaxRedeliveries,
		Logger:          app.logger,
	})
	if err != nil {
		return err
	}
	log.Info("worker starting", "mock_aws", app.cfg.MockAWS, "max_retries", app.cfg.JobMaxRetries, "max_redeliveries", app.cfg.JobMaxRedeliveries)
	if err := w.Run(ctx, broker, prefetchFor(app.cfg, stage)); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

func buildProcessor(ctx context.Context, cfg *config.Config, stage jobs.Stage) (pipeline.Processor, error) {
	switch stage {
	case jobs.StageIngest:
		return pipeline.IngestStage{}, nil
	case jobs.StageOCR:
		extractor, err := ocr.NewTextract(ctx, cfg.AWSRegion, cfg.TextractS3Bucket)
		if err != nil {
			return nil, err
		}
		return pipeline.NewOCRStage(pipeline.OCROptions{
			Extractor:    extractor,
			MockDefault:  cfg.MockAWS,
			PollInterval: cfg.TextractPollInterval,
			MaxPolls:     cfg.TextractMaxPolls,
		}), nil
	case jobs.StageNLP:
		analyzer, err := nlp.NewComprehend(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return pipeline.NewNLPStage(analyzer, cfg.MockAWS), nil
	}
	return nil, fmt.Errorf("stage %q has no worker", stage)
}

func prefetchFor(cfg *config.Config, stage jobs.Stage) int {
	switch stage {
	case jobs.StageOCR:
		return cfg.PrefetchOCR
	case jobs.StageNLP:
		return cfg.PrefetchNLP
	default:
		return cfg.PrefetchIngest
	}
}
