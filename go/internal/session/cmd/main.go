// Headless observer client: connects to an authority, syncs, and prints the
// projected table whenever state changes. Useful for watching a session from
// a terminal and as an end-to-end exercise of the client engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/breakwater-labs/clocktower/go/internal/config"
	"github.com/breakwater-labs/clocktower/go/internal/model"
	"github.com/breakwater-labs/clocktower/go/internal/prefs"
	"github.com/breakwater-labs/clocktower/go/internal/session"
	"github.com/breakwater-labs/clocktower/go/internal/store"
	"github.com/breakwater-labs/clocktower/go/internal/view"
)

func main() {
	configPath := flag.String("config", "clocktower.yaml", "path to config file")
	asPlayer := flag.String("as", "", "player id to view the table as (remembered)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	prefsPath, err := prefs.DefaultPath()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve prefs path")
	}
	p, err := prefs.Load(prefsPath)
	if err != nil {
		log.Warn().Err(err).Msg("could not load prefs, starting fresh")
	}
	if *asPlayer != "" && *asPlayer != p.PlayerID {
		p.PlayerID = *asPlayer
		if err := prefs.Save(prefsPath, p); err != nil {
			log.Warn().Err(err).Msg("could not save prefs")
		}
	}

	st := store.New(log.Logger)

	chCfg := session.DefaultConfig(cfg.Client.URL)
	if cfg.Client.ReconnectMin > 0 {
		chCfg.ReconnectMin = cfg.Client.ReconnectMin
	}
	if cfg.Client.ReconnectMax > 0 {
		chCfg.ReconnectMax = cfg.Client.ReconnectMax
	}
	ch := session.New(chCfg, st, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("session channel failed")
		}
	}()

	go watch(ctx, st, ch, p.PlayerID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	cancel()
}

// watch polls for state changes and reprints the table. Polling keeps the
// store free of subscription machinery; a redraw a few times a second is
// plenty for a terminal view.
func watch(ctx context.Context, st *store.Store, ch *session.Channel, viewerID string) {
	var lastPrint string
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !st.Synced() {
			continue
		}

		out := render(st, ch, viewerID)
		if out != lastPrint {
			fmt.Print("\033[2J\033[H", out)
			lastPrint = out
		}
	}
}

func render(st *store.Store, ch *session.Channel, viewerID string) string {
	players := st.Players()
	out := ""
	if ch.Stale() {
		out += "-- reconnecting, view may be stale --\n\n"
	}
	for _, id := range view.PlayerOrder(players, viewerID) {
		p := players[id]
		out += fmt.Sprintf("%s\n", p.Name)
		for _, cid := range view.ClockOrder(p.Clocks) {
			c := p.Clocks[cid]
			out += fmt.Sprintf("  [%d/%d] %s\n", c.Progress, c.Slices, c.Task)
		}
	}

	notes := st.Notes()
	if len(notes) > 0 {
		out += "\nnotes:\n"
		for _, cat := range model.Categories() {
			for _, id := range view.NoteOrder(notes, view.NotesByTitle, cat) {
				n := notes[id]
				out += fmt.Sprintf("  (%s) %s: %s\n", n.Cat, n.Title, n.Desc)
			}
		}
	}
	return out
}
