// feedtail signs in with a token from the environment, warms the cache from
// disk, then tails the home feed and the lobby presence room, printing
// changes as they arrive. It is the smallest end-to-end wiring of the
// gateway, cache and bridge.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/lumeo/client/pkg/bridge"
	"github.com/lumeo/client/pkg/gateway"
	"github.com/lumeo/client/pkg/normalize"
	"github.com/lumeo/client/pkg/querycache"
	"github.com/lumeo/client/pkg/realtime"
	"github.com/lumeo/client/pkg/structs"
)

func main() {
	// Load dotenv
	godotenv.Load()

	// Init Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn: os.Getenv("SENTRY_DSN"),
	}); err != nil {
		panic(err)
	}
	defer sentry.Flush(time.Second * 5)

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Open the persisted cache
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = ".lumeo-cache"
	}
	store, err := querycache.OpenStore(cacheDir, 24*time.Hour, logger)
	if err != nil {
		log.Fatalln(err)
	}
	cache := querycache.New(querycache.Options{Logger: logger, Store: store})
	defer cache.Close()

	// Gateway client + session from env
	gw, err := gateway.New(gateway.Config{
		BaseURL: os.Getenv("GATEWAY_URL"),
		APIKey:  os.Getenv("GATEWAY_KEY"),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalln(err)
	}
	sess := &gateway.Session{
		UserId:      os.Getenv("SESSION_USER_ID"),
		Username:    os.Getenv("SESSION_USERNAME"),
		AccessToken: os.Getenv("SESSION_TOKEN"),
	}
	gw.SetSession(sess)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Render last-known feed before the first refetch completes
	feedKey := querycache.MakeKey("feed", sess.UserId)
	if cache.Warm(feedKey, decodeFeed) {
		printFeed(cache, feedKey, "warm")
	}

	feedChanged, stopWatch := cache.Watch(feedKey)
	defer stopWatch()

	go func() {
		if _, err := cache.Fetch(ctx, feedKey, func(ctx context.Context) (any, error) {
			rows, err := gw.Select(ctx, "posts", gateway.SelectOpts{
				OrderBy: "created_at",
				Desc:    true,
				Limit:   20,
			})
			if err != nil {
				return nil, err
			}
			page := make([]structs.Post, 0, len(rows))
			for _, row := range rows {
				post, err := normalize.Post(row)
				if err != nil {
					logger.Warn("skipping bad post row", zap.Error(err))
					continue
				}
				page = append(page, post)
			}
			return querycache.Paged[structs.Post]{}.AppendPage(page), nil
		}); err != nil {
			logger.Error("feed fetch failed", zap.Error(err))
		}
	}()

	// Realtime: join the lobby presence room
	socket, err := realtime.Dial(ctx, os.Getenv("GATEWAY_WS_URL"), sess.AccessToken, logger)
	if err != nil {
		log.Fatalln(err)
	}
	defer socket.Close()

	lobby := socket.Channel("presence:lobby")
	if err := lobby.Subscribe(realtime.SubscribeConfig{}); err != nil {
		log.Fatalln(err)
	}

	br := bridge.New(bridge.Config{Cache: cache, Logger: logger, Hub: sentry.CurrentHub()})
	presence, err := br.Presence(lobby, realtime.Member{
		UserId:   sess.UserId,
		Username: sess.Username,
	})
	if err != nil {
		log.Fatalln(err)
	}
	defer presence.Close()

	log.Println("tailing feed; ctrl-c to exit")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-feedChanged:
			printFeed(cache, feedKey, "update")
		case <-ticker.C:
			online := presence.Online()
			fmt.Printf("online now: %d\n", len(online))
			for _, p := range online {
				fmt.Printf("  @%s\n", p.Username)
			}
		}
	}
}

func decodeFeed(raw []byte) (any, error) {
	var paged querycache.Paged[structs.Post]
	if err := msgpack.Unmarshal(raw, &paged); err != nil {
		return nil, err
	}
	return paged, nil
}

func printFeed(cache *querycache.Cache, key querycache.Key, reason string) {
	snap, ok := cache.Get(key)
	if !ok {
		return
	}
	paged, ok := snap.Value.(querycache.Paged[structs.Post])
	if !ok {
		return
	}
	fmt.Printf("feed (%s, %d posts, stale=%v)\n", reason, paged.Len(), snap.Stale)
	for _, post := range paged.Flatten() {
		fmt.Printf("  @%s: %s (%d likes)\n", post.Author.Username, post.Caption, post.LikeCount)
	}
}
