// Headless room participant: joins a room, wanders around, and negotiates
// mesh links with everyone it meets. Useful for soaking the server and for
// demoing the mesh without a browser.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextdooroldwang/sprite-house/internal/client"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:3301/ws", "signaling server URL")
		roomID    = flag.String("room", "LOBBY", "room id to join")
		username  = flag.String("name", "wanderer", "display name")
		avatar    = flag.String("avatar", "avatar_1", "avatar identifier")
		wander    = flag.Bool("wander", true, "random-walk around the room")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	session := client.NewSession(client.Config{
		ServerURL: *serverURL,
		RoomID:    *roomID,
		Username:  *username,
		Avatar:    *avatar,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *wander {
		go randomWalk(ctx, session)
	}

	err := session.Run(ctx)
	switch {
	case errors.Is(err, client.ErrRoomFull):
		log.Error("room is full, cannot join", slog.String("room", *roomID))
		os.Exit(1)
	case errors.Is(err, context.Canceled):
		log.Info("leaving room")
	case err != nil:
		log.Error("session ended", sl.Err(err))
		os.Exit(1)
	}
}

// randomWalk drifts the participant around the spawn area. Positions are fed
// through the session's mover, so the wire rate stays bounded no matter how
// fast this loop runs.
func randomWalk(ctx context.Context, session *client.Session) {
	x, y := 400.0, 300.0
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			x += (rand.Float64() - 0.5) * 16
			y += (rand.Float64() - 0.5) * 16
			session.Move(x, y)
		}
	}
}
