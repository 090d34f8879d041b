package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/client"
	"github.com/LuizAbreu777/aws-intelligence-lab/internal/jobs"
)

func submitAction(ctx context.Context, cmd *cli.Command) error {
	req := jobs.CreateRequest{
		Type: cmd.String("type"),
		Payload: jobs.Payload{
			Text:         cmd.String("text"),
			S3Key:        cmd.String("s3-key"),
			LanguageCode: cmd.String("lang"),
		},
	}
	if !req.Payload.HasText() && !req.Payload.HasDocument() {
		return errors.New("--text か --s3-key のどちらかを指定してください")
	}
	if cmd.IsSet("mock") {
		mock := cmd.Bool("mock")
		req.Payload.UseMockAws = &mock
	}

	app, err := newAppContext("cli")
	if err != nil {
		return err
	}
	defer app.Close()

	c, err := client.New(app.cfg.APIBaseURL, nil, app.logger)
	if err != nil {
		return err
	}
	created, err := c.Create(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("ジョブを登録しました: %s (%s/%s)\n", created.JobID, created.Status, created.Stage)
	if cmd.Bool("no-wait") {
		return nil
	}
	return waitAndPrint(ctx, c, created.JobID, cmd)
}

func pollAction(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		return errors.New("jobId を指定してください")
	}
	app, err := newAppContext("cli")
	if err != nil {
		return err
	}
	defer app.Close()

	c, err := client.New(app.cfg.APIBaseURL, nil, app.logger)
	if err != nil {
		return err
	}
	return waitAndPrint(ctx, c, id, cmd)
}

func waitAndPrint(ctx context.Context, c *client.Client, id string, cmd *cli.Command) error {
	opts := client.DefaultPollOptions()
	if d := cmd.Duration("timeout"); d > 0 {
		opts.Timeout = d
	}
	opts.OnUpdate = func(s *jobs.Snapshot) {
		fmt.Printf("  %-10s %-10s %3d%%\n", s.Status, s.Stage, s.Progress)
	}

	snap, err := c.Wait(ctx, id, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if snap.Status == jobs.StatusFailed {
		msg := "unknown error"
		if snap.ErrorMessage != nil {
			msg = *snap.ErrorMessage
		}
		return fmt.Errorf("job %s failed: %s", id, msg)
	}
	return nil
}
