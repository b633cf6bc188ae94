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

	"github.com/ytget/fetchvideo"
	"github.com/ytget/fetchvideo/config"
	"github.com/ytget/fetchvideo/internal/logger"
	"github.com/ytget/fetchvideo/types"
)

func main() {
	var (
		flagQuality   string
		flagMediaRoot string
		flagEnvFile   string
		flagSweep     bool
		flagSweeper   bool
		flagQualities bool
		flagQuiet     bool
	)

	flag.StringVar(&flagQuality, "quality", "720p", "Requested video quality label (e.g. '1080p', '720p60')")
	flag.StringVar(&flagMediaRoot, "media-root", "", "Directory for final artifacts (overrides env)")
	flag.StringVar(&flagEnvFile, "env-file", "", "Load environment from this .env file")
	flag.BoolVar(&flagSweep, "sweep", false, "Run one cleanup pass and exit")
	flag.BoolVar(&flagSweeper, "sweeper", false, "Run the periodic cleanup loop until interrupted")
	flag.BoolVar(&flagQualities, "list", false, "List available quality pairs instead of downloading")
	flag.BoolVar(&flagQuiet, "quiet", false, "Disable progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video_url_or_id>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		// A .env alongside the binary is optional.
		_ = godotenv.Load()
	}

	if logCfg, err := logger.EnvironmentConfig(); err == nil {
		logger.SetGlobalLogger(logger.New(logCfg))
	} else {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if flagMediaRoot != "" {
		cfg.MediaRoot = flagMediaRoot
	}

	svc, err := fetchvideo.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flagSweep {
		removed := svc.Sweep()
		fmt.Printf("Removed %d expired cache entries\n", removed)
		return
	}
	if flagSweeper {
		fmt.Printf("Running sweeper every %s (Ctrl-C to stop)\n", cfg.SweepInterval)
		svc.RunSweeper(ctx, cfg.SweepInterval)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	videoID, err := fetchvideo.ExtractVideoID(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if flagQualities {
		pairs, ref, err := svc.Qualities(ctx, videoID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s / %s (%s)\n", ref.Title, ref.Channel, ref.DurationString())
		for _, p := range pairs {
			video, audio := "-", "-"
			if p.Video != nil {
				video = fmt.Sprintf("%s %s (%dfps)", p.Video.QualityLabel, p.Video.Codec, p.Video.FPS)
			}
			if p.Audio != nil {
				audio = fmt.Sprintf("%s %s", p.Audio.BitrateLabel, p.Audio.Container)
			}
			fmt.Printf("  %-40s %s\n", video, audio)
		}
		return
	}

	done := make(chan struct{})
	if !flagQuiet {
		go pollProgress(ctx, svc, videoID, done)
	}
	res, err := svc.Download(ctx, videoID, flagQuality)
	close(done)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
	if res.CacheHit {
		fmt.Printf("\nServed from cache: %s\n", res.RelPath)
		return
	}
	fmt.Printf("\nSaved: %s\n", res.RelPath)
}

// pollProgress prints pipeline status lines until the download finishes.
func pollProgress(ctx context.Context, svc *fetchvideo.Service, videoID string, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			st := svc.Status(videoID)
			if st.Stage == types.StageUnknown {
				continue
			}
			fmt.Printf("[%3d%%] %-12s %s\r", st.Percent, st.Stage, st.Message)
		}
	}
}
