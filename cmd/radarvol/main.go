// radarvol downloads radar sweep files from an open-data archive,
// assembles them into volumes, exports single timesteps as ODIM_H5 and
// CfRadial files, verifies the exports round-trip, and renders plots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/arcus-data/radarvol/internal/cfradial"
	"github.com/arcus-data/radarvol/internal/config"
	"github.com/arcus-data/radarvol/internal/fsutil"
	"github.com/arcus-data/radarvol/internal/odim"
	"github.com/arcus-data/radarvol/internal/opendata"
	"github.com/arcus-data/radarvol/internal/plot"
	"github.com/arcus-data/radarvol/internal/scancache"
	"github.com/arcus-data/radarvol/internal/verify"
	"github.com/arcus-data/radarvol/internal/version"
	"github.com/arcus-data/radarvol/internal/volume"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "fetch":
		handleFetch(ctx, args)
	case "export":
		handleExport(ctx, args)
	case "verify":
		handleVerify(ctx, args)
	case "plot":
		handlePlot(ctx, args)
	case "cache":
		handleCache(args)
	case "version":
		fmt.Printf("radarvol version %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`radarvol - weather radar volume tool

Usage: radarvol <command> [options]

Commands:
  fetch      List and download sweep files into the local cache
  export     Assemble a volume and write one timestep as ODIM_H5 and CfRadial
  verify     Export one timestep and check both files read back losslessly
  plot       Render PPI images and an HTML report for a volume
  cache      Inspect or prune the local sweep cache
  version    Show radarvol version
  help       Show this help message

Common Flags:
  --config <file>      JSON configuration file (flags take precedence)
  --site <code>        Three-letter radar site identifier (default: ess)
  --from/--to <time>   Timestep window, RFC3339 or 2006-01-02T15:04
  --moments <list>     Comma-separated moment names (default: dbzh)
  --cache <file>       Sweep cache database path

Examples:
  # Download an afternoon of reflectivity sweeps for Essen
  radarvol fetch --site ess --from 2024-08-10T12:00 --to 2024-08-10T18:00

  # Export the latest timestep in the window to both formats
  radarvol export --site ess --from 2024-08-10T12:00 --to 2024-08-10T12:10 --out ./out

  # Check the exports are lossless
  radarvol verify --site ess --from 2024-08-10T12:00 --to 2024-08-10T12:10

  # Render plots for every sweep
  radarvol plot --site ess --from 2024-08-10T12:00 --to 2024-08-10T12:10 --out ./plots

  # Drop cached sweeps older than three days
  radarvol cache --prune --retention 72h`)
}

// commonFlags is the flag set shared by every archive-touching command.
type commonFlags struct {
	configPath *string
	baseURL    *string
	site       *string
	from       *string
	to         *string
	moments    *string
	cachePath  *string
	workers    *int
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "JSON configuration file"),
		baseURL:    fs.String("base-url", "", "Archive root URL (must end in /)"),
		site:       fs.String("site", "", "Three-letter site identifier"),
		from:       fs.String("from", "", "Window start (RFC3339 or 2006-01-02T15:04)"),
		to:         fs.String("to", "", "Window end, exclusive"),
		moments:    fs.String("moments", "", "Comma-separated moment names"),
		cachePath:  fs.String("cache", "", "Sweep cache database path"),
		workers:    fs.Int("workers", 0, "Concurrent downloads"),
	}
}

// loadConfig applies the config file under the parsed flags. An empty path
// means defaults only.
func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Empty()
	}
	cfg, err := config.Load(fsutil.OSFileSystem{}, path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return cfg
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func parseWindow(from, to string) opendata.TimeWindow {
	var w opendata.TimeWindow
	var err error
	if from != "" {
		if w.From, err = parseTime(from); err != nil {
			log.Fatalf("parse --from: %v", err)
		}
	}
	if to != "" {
		if w.To, err = parseTime(to); err != nil {
			log.Fatalf("parse --to: %v", err)
		}
	}
	return w
}

// pick returns the flag value when set, otherwise the config fallback.
func pick(flagVal, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return cfgVal
}

func momentSet(flagVal string, cfg *config.Config) map[string]bool {
	names := cfg.GetMoments()
	if flagVal != "" {
		names = strings.Split(flagVal, ",")
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	return set
}

// openClient builds the archive client and its backing cache from flags and
// config. The returned closer is nil when no cache is configured.
func openClient(cf *commonFlags, cfg *config.Config) (*opendata.Client, *scancache.Cache) {
	cachePath := pick(*cf.cachePath, cfg.GetCachePath())
	cache, err := scancache.Open(cachePath)
	if err != nil {
		log.Fatalf("open sweep cache %s: %v", cachePath, err)
	}

	workers := *cf.workers
	if workers == 0 {
		workers = cfg.GetWorkers()
	}
	return &opendata.Client{
		BaseURL: pick(*cf.baseURL, cfg.GetBaseURL()),
		Cache:   cache,
		Workers: workers,
	}, cache
}

// fetchSweeps lists the window, filters by moment, and downloads everything
// through the cache.
func fetchSweeps(ctx context.Context, client *opendata.Client, cf *commonFlags, cfg *config.Config) []opendata.RawSweep {
	site := pick(*cf.site, cfg.GetSite())
	window := parseWindow(*cf.from, *cf.to)
	moments := momentSet(*cf.moments, cfg)

	refs, err := client.ListSweeps(ctx, site, window)
	if err != nil {
		log.Fatalf("list sweeps for %s: %v", site, err)
	}

	var wanted []opendata.SweepRef
	for _, ref := range refs {
		if moments[ref.Moment] {
			wanted = append(wanted, ref)
		}
	}
	log.Printf("site %s: %d sweep files in window, %d match requested moments", site, len(refs), len(wanted))
	if len(wanted) == 0 {
		log.Fatalf("no sweep files to fetch; widen --from/--to or check --moments")
	}

	raws, err := client.Fetch(ctx, wanted)
	if err != nil {
		log.Fatalf("fetch sweeps: %v", err)
	}
	return raws
}

// assembleVolume decodes raw sweep files and stacks them into a volume.
func assembleVolume(raws []opendata.RawSweep) *volume.Volume {
	scans := make([]*volume.Scan, 0, len(raws))
	for _, raw := range raws {
		scan, err := odim.DecodeScan(raw.Data)
		if err != nil {
			log.Fatalf("decode %s: %v", raw.Ref.Filename, err)
		}
		scans = append(scans, scan)
	}
	vol, err := volume.Assemble(scans)
	if err != nil {
		log.Fatalf("assemble volume: %v", err)
	}
	return vol
}

// selectTimestep reduces a volume to one timestep: the one named by ts, or
// the latest when ts is empty.
func selectTimestep(vol *volume.Volume, ts string) *volume.Volume {
	times := vol.Times()
	target := times[len(times)-1]
	if ts != "" {
		var err error
		if target, err = parseTime(ts); err != nil {
			log.Fatalf("parse --time: %v", err)
		}
	}
	one, err := vol.At(target)
	if err != nil {
		log.Fatalf("select timestep: %v", err)
	}
	return one
}

func handleFetch(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	cfg := loadConfig(*cf.configPath)
	client, cache := openClient(cf, cfg)
	defer cache.Close()

	raws := fetchSweeps(ctx, client, cf, cfg)

	var bytes int64
	for _, raw := range raws {
		bytes += int64(len(raw.Data))
	}
	log.Printf("fetched %d sweep files (%d bytes) into %s", len(raws), bytes, pick(*cf.cachePath, cfg.GetCachePath()))
}

func handleExport(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cf := addCommonFlags(fs)
	ts := fs.String("time", "", "Timestep to export (default: latest in window)")
	outDir := fs.String("out", "", "Output directory")
	fs.Parse(args)

	cfg := loadConfig(*cf.configPath)
	client, cache := openClient(cf, cfg)
	defer cache.Close()

	vol := assembleVolume(fetchSweeps(ctx, client, cf, cfg))
	one := selectTimestep(vol, *ts)

	dir := pick(*outDir, cfg.GetOutputDir())
	odimPath, cfradialPath := exportPaths(dir, pick(*cf.site, cfg.GetSite()), one.Times()[0])

	if err := odim.WriteVolume(one, odimPath); err != nil {
		log.Fatalf("write ODIM_H5: %v", err)
	}
	log.Printf("wrote %s", odimPath)

	if err := cfradial.Write(one, cfradialPath); err != nil {
		log.Fatalf("write CfRadial: %v", err)
	}
	log.Printf("wrote %s", cfradialPath)
}

func exportPaths(dir, site string, t time.Time) (odimPath, cfradialPath string) {
	stamp := t.UTC().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", site, stamp)
	return filepath.Join(dir, base+".h5"), filepath.Join(dir, base+".nc")
}

func handleVerify(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	cf := addCommonFlags(fs)
	ts := fs.String("time", "", "Timestep to verify (default: latest in window)")
	fs.Parse(args)

	cfg := loadConfig(*cf.configPath)
	client, cache := openClient(cf, cfg)
	defer cache.Close()

	vol := assembleVolume(fetchSweeps(ctx, client, cf, cfg))
	one := selectTimestep(vol, *ts)

	dir, err := os.MkdirTemp("", "radarvol-verify-")
	if err != nil {
		log.Fatalf("create scratch dir: %v", err)
	}
	defer os.RemoveAll(dir)

	odimPath, cfradialPath := exportPaths(dir, pick(*cf.site, cfg.GetSite()), one.Times()[0])

	failed := false
	failed = !roundTripODIM(one, odimPath) || failed
	failed = !roundTripCfRadial(one, cfradialPath) || failed
	if failed {
		os.Exit(1)
	}
}

func roundTripODIM(one *volume.Volume, path string) bool {
	if err := odim.WriteVolume(one, path); err != nil {
		log.Fatalf("write ODIM_H5: %v", err)
	}
	back, err := odim.ReadVolume(path)
	if err != nil {
		log.Fatalf("read back ODIM_H5: %v", err)
	}
	report := verify.Compare(one, back, verify.DefaultTolerance)
	log.Printf("ODIM_H5: %s", report)
	return report.OK()
}

func roundTripCfRadial(one *volume.Volume, path string) bool {
	if err := cfradial.Write(one, path); err != nil {
		log.Fatalf("write CfRadial: %v", err)
	}
	back, err := cfradial.Read(path)
	if err != nil {
		log.Fatalf("read back CfRadial: %v", err)
	}
	report := verify.Compare(one, back, verify.DefaultTolerance)
	log.Printf("CfRadial: %s", report)
	return report.OK()
}

func handlePlot(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	cf := addCommonFlags(fs)
	ts := fs.String("time", "", "Timestep to plot (default: latest in window)")
	outDir := fs.String("out", "", "Output directory")
	fieldName := fs.String("field", "DBZH", "Moment to render")
	fs.Parse(args)

	cfg := loadConfig(*cf.configPath)
	client, cache := openClient(cf, cfg)
	defer cache.Close()

	vol := assembleVolume(fetchSweeps(ctx, client, cf, cfg))
	one := selectTimestep(vol, *ts)

	dir := pick(*outDir, cfg.GetOutputDir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	for i, sw := range one.Sweeps() {
		if sw.Field(*fieldName) == nil {
			log.Printf("sweep %.1f° has no %s, skipping PPI", sw.FixedAngle, *fieldName)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("ppi_%02d_%s.png", i, strings.ToLower(*fieldName)))
		if err := plot.SavePPI(sw, *fieldName, 0, path); err != nil {
			log.Fatalf("render PPI for sweep %.1f°: %v", sw.FixedAngle, err)
		}
		log.Printf("wrote %s", path)
	}

	reportPath := filepath.Join(dir, "report.html")
	if err := plot.NewReport(nil).Write(one, *fieldName, reportPath); err != nil {
		log.Fatalf("render report: %v", err)
	}
	log.Printf("wrote %s", reportPath)
}

func handleCache(args []string) {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON configuration file")
	cachePath := fs.String("cache", "", "Sweep cache database path")
	prune := fs.Bool("prune", false, "Delete entries older than the retention window")
	retention := fs.Duration("retention", 0, "Retention window for --prune (default from config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	path := pick(*cachePath, cfg.GetCachePath())
	cache, err := scancache.Open(path)
	if err != nil {
		log.Fatalf("open sweep cache %s: %v", path, err)
	}
	defer cache.Close()

	if *prune {
		keep := *retention
		if keep == 0 {
			keep = cfg.GetCacheRetention()
		}
		removed, err := cache.Prune(keep)
		if err != nil {
			log.Fatalf("prune cache: %v", err)
		}
		log.Printf("pruned %d entries older than %s from %s", removed, keep, path)
	}

	stats, err := cache.Stats()
	if err != nil {
		log.Fatalf("cache stats: %v", err)
	}
	fmt.Printf("cache %s: %d entries, %d bytes\n", path, stats.Entries, stats.Bytes)
	if stats.Entries > 0 {
		fmt.Printf("fetched between %s and %s\n",
			stats.OldestFet.UTC().Format(time.RFC3339), stats.NewestFet.UTC().Format(time.RFC3339))
	}
}
