// Package main はステージワーカーと運用コマンドのエントリーポイントです。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func stageFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "stage",
		Usage:    usage,
		Required: true,
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "ドキュメント解析パイプラインのワーカーと運用コマンド",
		Commands: []*cli.Command{
			{
				Name:   "worker",
				Usage:  "ステージワーカーを起動する（SIGTERM で停止）",
				Flags:  []cli.Flag{stageFlag("ingest / ocr / nlp")},
				Action: workerAction,
			},
			{
				Name:  "dlq",
				Usage: "デッドレターの確認と削除",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "デッドレターに移されたメッセージを表示する",
						Flags: []cli.Flag{
							stageFlag("ingest / ocr / nlp"),
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数",
								Value: 50,
							},
						},
						Action: dlqListAction,
					},
					{
						Name:   "purge",
						Usage:  "デッドレターを削除する",
						Flags:  []cli.Flag{stageFlag("ingest / ocr / nlp")},
						Action: dlqPurgeAction,
					},
				},
			},
			{
				Name:  "submit",
				Usage: "API にジョブを登録し、終了するまで待つ",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "解析するテキスト"},
					&cli.StringFlag{Name: "s3-key", Usage: "バケット上のドキュメントのキー"},
					&cli.StringFlag{Name: "lang", Usage: "言語コード（pt / en）"},
					&cli.StringFlag{Name: "type", Usage: "ジョブ種別", Value: "full"},
					&cli.BoolFlag{Name: "mock", Usage: "外部サービスを呼ばずに固定応答を使う"},
					&cli.BoolFlag{Name: "no-wait", Usage: "登録だけ行いポーリングしない"},
					&cli.DurationFlag{Name: "timeout", Usage: "待ち時間の上限"},
				},
				Action: submitAction,
			},
			{
				Name:      "poll",
				Usage:     "ジョブが終了するまで状態を表示する",
				ArgsUsage: "<jobId>",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Usage: "待ち時間の上限"},
				},
				Action: pollAction,
			},
			{
				Name:      "ocr-file",
				Usage:     "ローカルの画像か1ページの PDF を同期で文字抽出する",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "mock", Usage: "外部サービスを呼ばずに固定応答を使う"},
				},
				Action: ocrFileAction,
			},
		},
	}
}
