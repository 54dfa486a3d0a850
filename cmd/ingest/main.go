// Command ingest runs one ingestion pass (or a thumbnail refresh) and prints
// the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/bootstrap"
	"github.com/YidKik/yidvid-sub003/internal/config"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
)

func main() {
	var (
		channels     = flag.String("channels", "", "comma-separated channel IDs (default: every channel due for a fetch)")
		force        = flag.Bool("force", false, "fetch channels even if they were fetched recently")
		conservative = flag.Bool("conservative", false, "cap videos per channel to save quota")
		maxChannels  = flag.Int("max-channels", 0, "maximum channels in this run (default from INGEST_MAX_CHANNELS)")
		thumbnails   = flag.Int("thumbnails", -1, "refresh up to N placeholder thumbnails instead of ingesting (0 = default batch)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Console logs go to stderr; stdout carries the run result.
	middleware.InitLogger(cfg.LogLevel, "yidvid-ingest", true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer deps.Close()

	var result any
	if *thumbnails >= 0 {
		result, err = deps.Pipeline.RefreshThumbnails(ctx, *thumbnails)
	} else {
		result, err = deps.Pipeline.Run(ctx, ingest.Request{
			ChannelIDs:        splitIDs(*channels),
			ForceUpdate:       *force,
			QuotaConservative: *conservative,
			MaxChannels:       *maxChannels,
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("ingest failed")
		deps.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Error().Err(err).Msg("write summary")
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
