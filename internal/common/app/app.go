package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that is cancelled when SIGINT or SIGTERM is received.
// A second signal exits the process immediately. Calling the returned CancelFunc stops listening.
func CreateContextWithShutdown() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-c:
			log.Warnf("received %s, stopping running tools", s)
			cancel()
		case <-ctx.Done():
			signal.Stop(c)
			return
		}
		<-c
		log.Error("received second signal, exiting")
		os.Exit(130)
	}()
	return ctx, cancel
}
