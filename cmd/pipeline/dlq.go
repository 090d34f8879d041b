package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/LuizAbreu777/aws-intelligence-lab/internal/queue"
)

func dlqListAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext("dlq")
	if err != nil {
		return err
	}
	defer app.Close()

	_, q, err := app.stageQueue(cmd.String("stage"))
	if err != nil {
		return err
	}
	broker, err := app.openBroker(ctx)
	if err != nil {
		return err
	}
	letters, err := broker.ListDeadLetters(ctx, q, cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		fmt.Printf("%s は空です\n", queue.DeadLetterName(q))
		return nil
	}
	renderDeadLetters(letters)
	return nil
}

func dlqPurgeAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newAppContext("dlq")
	if err != nil {
		return err
	}
	defer app.Close()

	_, q, err := app.stageQueue(cmd.String("stage"))
	if err != nil {
		return err
	}
	broker, err := app.openBroker(ctx)
	if err != nil {
		return err
	}
	n, err := broker.PurgeDeadLetters(ctx, q)
	if err != nil {
		return err
	}
	app.logger.Info("dead letters purged", "queue", queue.DeadLetterName(q), "count", n)
	fmt.Printf("%s から %d 件削除しました\n", queue.DeadLetterName(q), n)
	return nil
}

// renderDeadLetters はデッドレターを表形式で表示します。
func renderDeadLetters(letters []queue.DeadLetterEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Stage", "Retried", "Last Error", "Failed At")
	for _, dl := range letters {
		jobID := dl.Message.JobID
		if jobID == "" {
			jobID = "(" + dl.TaskID + ")"
		}
		failedAt := ""
		if !dl.FailedAt.IsZero() {
			failedAt = dl.FailedAt.Format("2006-01-02 15:04:05")
		}
		table.Append(jobID, dl.Message.Stage, fmt.Sprintf("%d", dl.Retried), dl.LastErr, failedAt)
	}
	table.Render()
}
