// ABOUTME: Entry point for the Glowsync panel
// ABOUTME: Parses CLI flags and wires the sync driver, server, and player
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowsync/glowsync-go/internal/discovery"
	"github.com/glowsync/glowsync-go/internal/driver"
	"github.com/glowsync/glowsync-go/internal/fpp"
	"github.com/glowsync/glowsync-go/internal/player"
	"github.com/glowsync/glowsync-go/internal/server"
	"github.com/glowsync/glowsync-go/internal/ui"
	"github.com/glowsync/glowsync-go/internal/version"
)

var (
	daemonURL  = flag.String("fpp", "", "Show daemon base URL (skip mDNS), e.g. http://192.168.8.1")
	port       = flag.Int("port", 8930, "Panel listen port")
	name       = flag.String("name", "", "Panel friendly name (default: hostname-glowsync-panel)")
	mediaDir   = flag.String("media-dir", ".", "Directory holding media and frame files")
	pollMs     = flag.Int("poll-ms", 250, "Status poll interval in milliseconds")
	noFrames   = flag.Bool("no-frames", false, "Disable frame-locked streaming")
	noAudio    = flag.Bool("no-audio", false, "Disable local audio playback")
	logFile    = flag.String("log-file", "glowsync-panel.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	panelName := *name
	if panelName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		panelName = fmt.Sprintf("%s-glowsync-panel", hostname)
	}

	log.Printf("Starting %s v%s: %s", version.Product, version.Version, panelName)

	// mDNS: advertise the panel and, if no daemon was given, find one.
	disc := discovery.NewManager(discovery.Config{
		ServiceName: panelName,
		Port:        *port,
	})
	defer disc.Stop()

	if err := disc.Advertise(); err != nil {
		log.Printf("Failed to start mDNS advertisement: %v", err)
	}

	daemon := *daemonURL
	if daemon == "" {
		log.Printf("Starting show daemon discovery...")
		disc.Browse()

		select {
		case d := <-disc.Daemons():
			daemon = d.BaseURL()
			log.Printf("Discovered show daemon at %s", daemon)
		case <-time.After(10 * time.Second):
			log.Fatalf("No show daemon found after 10 seconds (use -fpp to set one)")
		}
	}

	daemonClient := fpp.NewClient(fpp.Config{BaseURL: daemon})

	drv := driver.New(daemonClient, driver.Config{
		PollInterval:   time.Duration(*pollMs) * time.Millisecond,
		MediaDir:       *mediaDir,
		FrameStreaming: !*noFrames,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go drv.Run(ctx)

	if !*noAudio {
		plr := player.New(player.Config{MediaDir: *mediaDir})
		go plr.Run(ctx, drv.SubscribeCorrections())
	}

	srv := server.New(server.Config{Port: *port, Name: panelName}, drv, daemonClient)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()
	defer srv.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if useTUI {
		tui := ui.NewPanelTUI()

		// Feed the TUI fresh snapshots until shutdown.
		go func() {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tui.Update(drv.Snapshot())
				}
			}
		}()

		go func() {
			select {
			case sig := <-sigChan:
				log.Printf("Received signal %v, shutting down...", sig)
			case err := <-serverErr:
				if err != nil {
					log.Printf("Server error: %v", err)
				}
			}
			tui.Stop()
		}()

		if err := tui.Start(panelName, daemon); err != nil {
			log.Printf("TUI error: %v", err)
		}
	} else {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal %v, shutting down...", sig)
		case err := <-serverErr:
			if err != nil {
				log.Fatalf("Server error: %v", err)
			}
		}
	}

	log.Printf("Panel stopped")
}
