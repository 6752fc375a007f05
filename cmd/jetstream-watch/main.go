// Package main runs the JetStream watcher: it tracks a set of aircraft over
// the realtime transport and renders a live terminal dashboard.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/yegors/jetstream/internal/config"
	"github.com/yegors/jetstream/internal/dashboard"
	"github.com/yegors/jetstream/internal/fleet"
	"github.com/yegors/jetstream/internal/fleetapi"
	"github.com/yegors/jetstream/internal/maplayer"
	"github.com/yegors/jetstream/internal/notify"
	"github.com/yegors/jetstream/internal/realtime"
	"github.com/yegors/jetstream/internal/tracker"
	"github.com/yegors/jetstream/pkg/logger"
)

const (
	recentNotifications = 5
	clearScreen         = "\033[H\033[2J"
)

type flags struct {
	configPath string
	aircraft   []string
	status     string
	operator   string
	category   string
	geojson    string
	desktop    bool
	logLevel   string
}

func main() {
	var f flags
	setupCommandLineFlags(&f)
	pflag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "jetstream-watch: %v\n", err)
		os.Exit(1)
	}
}

func setupCommandLineFlags(f *flags) {
	pflag.StringVarP(&f.configPath, "config", "c", "", "path to a TOML or YAML config file")
	pflag.StringSliceVarP(&f.aircraft, "aircraft", "a", nil, "aircraft ids to track (overrides watch.aircraft)")
	pflag.StringVar(&f.status, "status", "", "only list aircraft with this status")
	pflag.StringVar(&f.operator, "operator", "", "only list aircraft of this operator")
	pflag.StringVar(&f.category, "category", "", "only list aircraft of this category")
	pflag.StringVar(&f.geojson, "geojson", "", "write tracked positions to this GeoJSON file")
	pflag.BoolVarP(&f.desktop, "desktop", "d", false, "raise desktop notifications for warnings and errors")
	pflag.Lookup("desktop").NoOptDefVal = "true"
	pflag.StringVar(&f.logLevel, "log-level", "", "override logging.level")
}

// applyFlags folds command line overrides into cfg and revalidates it
func applyFlags(cfg *config.Config, f flags) error {
	if len(f.aircraft) > 0 {
		cfg.Watch.Aircraft = f.aircraft
	}
	if f.status != "" {
		cfg.Watch.FilterStatus = f.status
	}
	if f.operator != "" {
		cfg.Watch.FilterOperator = f.operator
	}
	if f.category != "" {
		cfg.Watch.FilterCategory = f.category
	}
	if f.geojson != "" {
		cfg.Watch.GeoJSONPath = f.geojson
	}
	if f.desktop {
		cfg.Notify.Desktop = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	return cfg.Validate()
}

func run(f flags) error {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := applyFlags(cfg, f); err != nil {
		return err
	}
	if len(cfg.Watch.Aircraft) == 0 {
		return fmt.Errorf("no aircraft to watch: pass --aircraft or set watch.aircraft")
	}

	// The dashboard owns stdout
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	log = log.Named("watch")

	filter := dashboard.Filter{
		Operator:   cfg.Watch.FilterOperator,
		Category:   cfg.Watch.FilterCategory,
		StaleAfter: cfg.Watch.StaleAfter(),
	}
	if cfg.Watch.FilterStatus != "" {
		// Already checked by Validate
		filter.Status, _ = fleet.ParseStatus(cfg.Watch.FilterStatus)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := realtime.NewClient(cfg.Realtime.URL, realtime.Options{
		ConnectTimeout:       cfg.Realtime.ConnectTimeout(),
		WriteTimeout:         cfg.Realtime.WriteTimeout(),
		ProbeInterval:        cfg.Realtime.ProbeInterval(),
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay(),
		ReconnectMaxDelay:    cfg.Realtime.ReconnectMaxDelay(),
		HealthWindow:         cfg.Realtime.HealthWindow,
	}, log)
	if err := client.Connect(ctx); err != nil {
		// Trackers still load over HTTP while the transport retries in the background
		log.Warn("Starting without live updates", logger.Error(err))
	}
	defer client.Disconnect()

	api := fleetapi.NewClient(cfg.Tracker.APIBaseURL, cfg.Tracker.FetchTimeout(), log)

	center := notify.NewCenter(notify.Options{
		HistorySize: cfg.Notify.HistorySize,
		Desktop:     cfg.Notify.Desktop,
		IconPath:    cfg.Notify.IconPath,
	}, log)

	group := tracker.NewGroup(api, client, tracker.Options{
		UpdateInterval: cfg.Tracker.UpdateInterval(),
		RetryAttempts:  cfg.Tracker.RetryAttempts,
		FetchTimeout:   cfg.Tracker.FetchTimeout(),
		HistorySize:    cfg.Tracker.HistorySize,
		OnChange:       center.ObserveState,
	}, log)
	defer group.Close()

	features := maplayer.NewFeatureCollection()
	layer := maplayer.New(features, func(aircraftID string) {
		showDetails(os.Stderr, group, aircraftID)
	}, log)

	for _, id := range cfg.Watch.Aircraft {
		if _, err := group.Track(ctx, id); err != nil {
			log.Warn("Initial load failed", logger.String("aircraft_id", id), logger.Error(err))
		}
	}

	commands := make(chan string)
	go readCommands(os.Stdin, commands)

	w := &watcher{
		cfg:      cfg,
		filter:   filter,
		client:   client,
		group:    group,
		center:   center,
		layer:    layer,
		features: features,
		logger:   log,
		out:      os.Stdout,
	}

	ticker := time.NewTicker(cfg.Watch.RefreshInterval())
	defer ticker.Stop()

	w.refresh()
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return nil
		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			w.handleCommand(ctx, line)
		case <-ticker.C:
			w.refresh()
		}
	}
}

type watcher struct {
	cfg      *config.Config
	filter   dashboard.Filter
	client   *realtime.Client
	group    *tracker.Group
	center   *notify.Center
	layer    *maplayer.Layer
	features *maplayer.FeatureCollection
	logger   *logger.Logger
	out      io.Writer

	geojsonVersion uint64
}

// refresh redraws the dashboard and syncs the map layer with tracker state
func (w *watcher) refresh() {
	states := w.group.States()
	health := w.client.Health()

	w.center.HandleState(health)
	w.layer.Sync(maplayer.ItemsFromStates(states))
	w.writeGeoJSON()

	summary := dashboard.Summarize(states, w.filter, time.Now())

	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(dashboard.Render(summary, health))
	b.WriteString("\n")

	recent := w.center.Recent()
	if len(recent) > recentNotifications {
		recent = recent[:recentNotifications]
	}
	for _, n := range recent {
		fmt.Fprintf(&b, "[%s] %s: %s (%s)\n", n.Level, n.Title, n.Message, humanize.Time(n.Time))
	}
	b.WriteString("commands: select <id> | track <id> | untrack <id> | refresh <id> | reconnect\n")

	fmt.Fprint(w.out, b.String())
}

func (w *watcher) writeGeoJSON() {
	path := w.cfg.Watch.GeoJSONPath
	if path == "" {
		return
	}
	version := w.features.Version()
	if version == w.geojsonVersion {
		return
	}

	data, err := json.MarshalIndent(w.features, "", "  ")
	if err != nil {
		w.logger.Error("Failed to encode GeoJSON", logger.Error(err))
		return
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		w.logger.Error("Failed to write GeoJSON", logger.String("path", path), logger.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		w.logger.Error("Failed to replace GeoJSON", logger.String("path", path), logger.Error(err))
		return
	}
	w.geojsonVersion = version
}

func (w *watcher) handleCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	verb, id := fields[0], ""
	if len(fields) > 1 {
		id = fields[1]
	}

	switch verb {
	case "select":
		if !w.layer.Activate(id, maplayer.TriggerEnter) {
			w.logger.Warn("No marker for aircraft", logger.String("aircraft_id", id))
		}
	case "track":
		if id == "" {
			return
		}
		if _, err := w.group.Track(ctx, id); err != nil {
			w.logger.Warn("Initial load failed", logger.String("aircraft_id", id), logger.Error(err))
		}
	case "untrack":
		w.group.Untrack(id)
		w.center.Forget(id)
	case "refresh":
		t, ok := w.group.Get(id)
		if !ok {
			w.logger.Warn("Aircraft is not tracked", logger.String("aircraft_id", id))
			return
		}
		if err := t.Refresh(ctx); err != nil {
			w.logger.Warn("Refresh failed", logger.String("aircraft_id", id), logger.Error(err))
		}
	case "reconnect":
		if err := w.client.Reconnect(ctx); err != nil {
			w.logger.Warn("Reconnect failed", logger.Error(err))
		}
	default:
		w.logger.Warn("Unknown command", logger.String("command", verb))
	}
	w.refresh()
}

func readCommands(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// showDetails prints the recent track of a selected aircraft
func showDetails(out io.Writer, group *tracker.Group, aircraftID string) {
	t, ok := group.Get(aircraftID)
	if !ok {
		return
	}
	s := t.State()
	fmt.Fprintf(out, "%s (%s)\n", s.Aircraft.DisplayName(), aircraftID)
	for _, p := range t.History() {
		fmt.Fprintf(out, "  %s  %.4f,%.4f  %s ft  %.0f kt  %03.0f°\n",
			p.Timestamp.Format(time.TimeOnly),
			p.Latitude, p.Longitude,
			humanize.Comma(int64(p.Altitude)),
			p.GroundSpeed, p.Heading)
	}
}
