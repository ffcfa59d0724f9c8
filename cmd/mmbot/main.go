// Command mmbot plays mindmeld rounds with automated players. It is useful
// to smoke-test a running server.
//
//	mmbot --players 4 --answer moon
//	mmbot --url http://localhost:3001 --code 4821 --diverge
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/mindmeld/config"
	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "mmbot",
		Usage: "play a mindmeld round with bots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:3001", Usage: "Server base URL"},
			&cli.IntFlag{Name: "code", Usage: "Join an existing game instead of creating one"},
			&cli.IntFlag{Name: "players", Value: 3, Usage: "Number of bots"},
			&cli.StringFlag{Name: "answer", Value: "moon", Usage: "Word every bot answers"},
			&cli.BoolFlag{Name: "diverge", Usage: "Give each bot a different answer"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "Give up after this long"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mmbot: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, closeLog, err := logging.New(config.LogConfig{Level: cmd.String("log-level"), Format: "text"}, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	baseURL := cmd.String("url")
	code := cmd.Int("code")
	if code == 0 {
		code, err = CreateGame(ctx, &http.Client{Timeout: 10 * time.Second}, baseURL)
		if err != nil {
			return err
		}
		logger.WithField("code", code).Info("Created game")
	}

	answers := make([]string, cmd.Int("players"))
	for i := range answers {
		answers[i] = cmd.String("answer")
		if cmd.Bool("diverge") {
			answers[i] = fmt.Sprintf("%s-%d", answers[i], i+1)
		}
	}

	final, err := PlayRound(ctx, baseURL, code, answers, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"code":    final.Code,
		"players": final.PlayersNum,
		"reason":  final.FinishReason,
		"answers": final.Answers,
	}).Info("Round finished")
	return nil
}

// PlayRound seats one bot per answer in the game and waits until every bot
// has seen it finish.
func PlayRound(ctx context.Context, baseURL string, code int, answers []string, log logrus.FieldLogger) (engine.State, error) {
	if len(answers) == 0 {
		return engine.State{}, fmt.Errorf("at least one player is required")
	}

	bots := make([]*Bot, 0, len(answers))
	defer func() {
		for _, b := range bots {
			b.Close()
		}
	}()
	for i, answer := range answers {
		b, err := Dial(ctx, baseURL, fmt.Sprintf("bot-%d", i+1), answer, log)
		if err != nil {
			return engine.State{}, err
		}
		b.Seats = len(answers)
		bots = append(bots, b)
	}

	results := make([]engine.State, len(bots))
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range bots {
		g.Go(func() error {
			state, err := b.Play(ctx, code)
			if err != nil {
				return fmt.Errorf("%s: %w", b.Name, err)
			}
			results[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return engine.State{}, err
	}
	return results[0], nil
}
