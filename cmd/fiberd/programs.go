package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// program is the body of a manifest process. Its result is the exit code.
type program func(ctx context.Context, e *env) int64

var programs = map[string]program{
	"echo":    echo,
	"client":  client,
	"sleeper": sleeper,
}

// env is what a program gets from its bootstrap message.
type env struct {
	k    *kernel.Kernel
	log  *zap.Logger
	boot *kernel.Bootstrap
}

// peers returns the channels to connected processes, in connection order.
func (e *env) peers() []sys.HandleValue {
	var out []sys.HandleValue
	for i := 0; ; i++ {
		h, ok := e.boot.Lookup(kernel.HandleInfo(kernel.HandleTypeUser0, uint16(i)))
		if !ok {
			return out
		}
		out = append(out, h)
	}
}

// wait parks until h is readable or its peer is gone.
func (e *env) wait(ctx context.Context, h sys.HandleValue) error {
	w := object.NewWaiter()
	cancel, err := e.k.ObjectWaitAsync(ctx, h, sys.SignalReadable|sys.SignalPeerClosed, w)
	if err != nil {
		return err
	}
	defer cancel()
	_, err = w.Wait(ctx)
	return err
}

// echo answers every message on every peer channel until all peers close.
func echo(ctx context.Context, e *env) int64 {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range e.peers() {
		g.Go(func() error { return e.serve(ctx, ch) })
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("echo stopped", zap.Error(err))
		return 1
	}
	return 0
}

func (e *env) serve(ctx context.Context, ch sys.HandleValue) error {
	defer e.k.HandleClose(ctx, ch)

	buf := make([]byte, sys.ChannelMaxMsgBytes)
	for {
		n, _, err := e.k.ChannelRead(ctx, ch, sys.ChannelReadMayDiscard, buf, nil)
		switch {
		case err == nil:
			if err := e.k.ChannelWrite(ctx, ch, 0, buf[:n], nil); err != nil && !errors.Is(err, sys.ErrPeerClosed) {
				return err
			}
		case errors.Is(err, sys.ErrShouldWait):
			if err := e.wait(ctx, ch); err != nil {
				return err
			}
		case errors.Is(err, sys.ErrBufferTooSmall):
			e.log.Debug("dropped message carrying handles")
		case errors.Is(err, sys.ErrPeerClosed):
			return nil
		default:
			return err
		}
	}
}

// client sends args[0] pings to its first peer and checks the replies.
func client(ctx context.Context, e *env) int64 {
	peers := e.peers()
	if len(peers) == 0 {
		e.log.Error("client has no peer")
		return 2
	}
	ch := peers[0]
	defer e.k.HandleClose(ctx, ch)

	count := 1
	if len(e.boot.Args) > 0 {
		n, err := strconv.Atoi(e.boot.Args[0])
		if err != nil || n < 0 {
			e.log.Error("bad ping count", zap.String("arg", e.boot.Args[0]))
			return 2
		}
		count = n
	}

	buf := make([]byte, 64)
	for i := range count {
		ping := []byte(fmt.Sprintf("ping %d", i))
		if err := e.k.ChannelWrite(ctx, ch, 0, ping, nil); err != nil {
			e.log.Warn("ping failed", zap.Int("seq", i), zap.Error(err))
			return 1
		}
		if err := e.wait(ctx, ch); err != nil {
			return 1
		}
		n, _, err := e.k.ChannelRead(ctx, ch, 0, buf, nil)
		if err != nil || !bytes.Equal(buf[:n], ping) {
			e.log.Warn("bad reply", zap.Int("seq", i), zap.Error(err))
			return 1
		}
	}
	e.log.Info("client done", zap.Int("pings", count))
	return 0
}

// sleeper runs until it is killed.
func sleeper(ctx context.Context, e *env) int64 {
	<-ctx.Done()
	return 0
}
