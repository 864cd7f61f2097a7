// Command chargen batch-generates character-art artifacts from images.
//
// For every (image, width) pair it decodes the image, runs the
// generation pipeline, and writes one {id}_{width}.json artifact to the
// output directory. Items fail independently: a decode or generation
// error is recorded and the rest of the queue continues.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"gocv.io/x/gocv"

	"github.com/wbrown/img2chars"
	"github.com/wbrown/img2chars/gpu"
	"github.com/wbrown/img2chars/imageutil"
)

type cli struct {
	Config kong.ConfigFlag `short:"c" help:"Load flag defaults from a TOML config file."`

	Output   string `short:"o" default:"." help:"Directory artifacts are written to."`
	Widths   []int  `default:"80" help:"Text widths to generate for each image."`
	Mode     string `enum:"brightness,structure" default:"brightness" help:"Character selection mode."`
	Ramp     string `default:"standard" help:"Brightness ramp name."`
	Charset  string `help:"Structure-mode candidate characters (default: printable ASCII)."`
	FgColors int    `default:"16" help:"Foreground palette size (2..32)."`
	BgColors int    `default:"8" help:"Background palette size (1..16)."`
	UseBg    bool   `help:"Cluster background colors from cell dark means."`
	Sharpen  bool   `help:"Sharpen the resampled canvas before partitioning."`
	Seed     int64  `default:"1" help:"Clustering seed; fixed so reruns reproduce artifacts."`
	Workers  int    `default:"4" help:"Concurrent generation workers."`
	GPU      bool   `help:"Use the GPU structure matcher when available."`
	Preview  bool   `help:"Write a PNG preview next to each artifact."`
	LogLevel string `enum:"debug,info,warn,error" default:"info" help:"Log level."`

	Images []string `arg:"" name:"image" type:"existingfile" help:"Input images."`
}

// job is one (image, width) work item.
type job struct {
	path  string
	width int
}

// outcome records how one job finished, for the end-of-run summary.
type outcome struct {
	job      job
	err      error
	duration time.Duration
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("chargen"),
		kong.Description("Batch character-art artifact generator."),
		kong.UsageOnError(),
		kong.Configuration(kongtoml.Loader, "chargen.toml"),
	)

	setupLogger(flags.LogLevel)

	if flags.GPU {
		report := gpu.Probe()
		slog.Info("gpu capability probe",
			"computeAPI", report.HasComputeAPI,
			"adapter", report.HasAdapter,
			"device", report.HasDevice,
			"description", report.AdapterDescription,
			"failure", report.FailureReason)
		if !report.Available() {
			slog.Warn("gpu unavailable, running on CPU")
			flags.GPU = false
		}
	}

	outcomes := run(&flags)

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			slog.Error("generation failed",
				"image", o.job.path, "width", o.job.width, "error", o.err)
		} else {
			slog.Debug("generated",
				"image", o.job.path, "width", o.job.width, "took", o.duration)
		}
	}
	fmt.Printf("%d artifacts written, %d failed\n", len(outcomes)-failed, failed)
	if failed > 0 {
		kctx.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// run fans the (image, width) queue out to workers. Each worker owns its
// own GPU matcher when acceleration is enabled; device handles are not
// shared across workers.
func run(flags *cli) []outcome {
	var jobs []job
	for _, path := range flags.Images {
		for _, width := range flags.Widths {
			jobs = append(jobs, job{path: path, width: width})
		}
	}

	workers := flags.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan job)
	outCh := make(chan outcome, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(flags, jobCh, outCh)
		}()
	}
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()
	close(outCh)

	outcomes := make([]outcome, 0, len(jobs))
	for o := range outCh {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func worker(flags *cli, jobs <-chan job, out chan<- outcome) {
	var matcher img2chars.StructureMatcher
	if flags.GPU && flags.Mode == "structure" {
		m, err := gpu.NewMatcher()
		if err != nil {
			slog.Warn("gpu matcher init failed, worker running on CPU", "error", err)
		} else {
			defer m.Close()
			matcher = m
		}
	}

	for j := range jobs {
		start := time.Now()
		err := generateOne(flags, j, matcher)
		out <- outcome{job: j, err: err, duration: time.Since(start)}
	}
}

// generateOne decodes, generates, and persists a single artifact.
func generateOne(flags *cli, j job, matcher img2chars.StructureMatcher) error {
	buf, err := decodeImage(j.path)
	if err != nil {
		return err
	}

	seed := flags.Seed
	opts := img2chars.Options{
		TextWidth:           j.width,
		Ramp:                flags.Ramp,
		Charset:             flags.Charset,
		FgColorCount:        flags.FgColors,
		BgColorCount:        flags.BgColors,
		UseBackgroundColors: flags.UseBg,
		Sharpen:             flags.Sharpen,
		Seed:                &seed,
		Matcher:             matcher,
	}
	if flags.Mode == "structure" {
		opts.Mode = img2chars.ModeStructure
	}

	artifact, err := img2chars.Generate(buf, opts)
	if err != nil {
		return fmt.Errorf("generating %s at width %d: %w", j.path, j.width, err)
	}
	artifact.UnitID = unitID(j.path)

	outPath := filepath.Join(flags.Output,
		fmt.Sprintf("%s_%d.json", artifact.UnitID, j.width))
	if err := writeArtifact(artifact, outPath); err != nil {
		return err
	}

	if flags.Preview {
		if err := writePreview(artifact, outPath); err != nil {
			return err
		}
	}
	return nil
}

// decodeImage reads an image file into a pixel buffer. Unsupported or
// corrupt files are terminal for the item, not the batch.
func decodeImage(path string) (*img2chars.PixelBuffer, error) {
	mat := gocv.IMRead(path, gocv.IMReadUnchanged)
	if mat.Empty() {
		return nil, fmt.Errorf("could not read image from %s", path)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}
	return img2chars.BufferFromImage(img), nil
}

func unitID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeArtifact(artifact *img2chars.Artifact, path string) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Preview rendering cell size: wide enough to read, fixed 1:2 pitch.
const (
	previewCellWidth  = 8
	previewCellHeight = 16
)

func writePreview(artifact *img2chars.Artifact, artifactPath string) error {
	cache, err := img2chars.NewTemplateCache()
	if err != nil {
		return err
	}
	img, err := img2chars.RenderArtifact(artifact, cache, previewCellWidth, previewCellHeight)
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}
	pngPath := strings.TrimSuffix(artifactPath, ".json") + ".png"
	return imageutil.SavePNG(img, pngPath)
}
