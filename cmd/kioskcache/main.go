package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/kiosk-dashboard/internal/command"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.InitApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var initErr *command.InitError
		if errors.As(err, &initErr) {
			return 1
		}
		return 2
	}

	return 0
}
