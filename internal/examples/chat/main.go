// Command chat is a minimal chat room built on the websock package.
//
// Messages are broadcast to every subscriber over an upgraded connection;
// a message starting with "/bot " is additionally answered by an external
// text completion endpoint when one is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetFlags(0)

	err := run()
	if err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:0", "http service address")
	completionEndpoint := flag.String("completion-endpoint", "", "text completion endpoint used to answer /bot messages")
	flag.Parse()

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		return err
	}
	log.Printf("listening on ws://%v", l.Addr())

	cs := newChatServer()
	if *completionEndpoint != "" {
		cs.completions = newCompletionClient(*completionEndpoint)
	}

	s := &http.Server{
		Handler:      cs,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
