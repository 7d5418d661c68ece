package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atmopics/share/common/config"
	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/probe"
	"github.com/atmopics/share/common/render"
	"github.com/spf13/cobra"
)

// opener starts probe runtimes; replaced in tests
type opener func(cfg render.BrowserConfig, log *logger.Logger) (probe.OpenFunc, func() error)

func rodOpener(cfg render.BrowserConfig, log *logger.Logger) (probe.OpenFunc, func() error) {
	browser := render.NewBrowser(cfg, log)
	return probe.RodOpener(browser), browser.Close
}

type rootOptions struct {
	chromeBin  string
	controlURL string
	timeout    time.Duration
	logLevel   string
	open       opener
}

func newRootCmd(open opener) *cobra.Command {
	if open == nil {
		open = rodOpener
	}

	defaults := config.RenderConfig{Timeout: 20 * time.Second}
	if cfg, err := config.Load("atmo-probe"); err == nil {
		defaults = cfg.Render
	}

	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:           "atmo-probe",
		Short:         "Measure videos and generate thumbnails before upload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.chromeBin, "chrome-bin", defaults.ChromeBin, "Chromium binary (default: auto-detect)")
	root.PersistentFlags().StringVar(&opts.controlURL, "control-url", defaults.ControlURL, "DevTools URL of a running browser")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Per-probe timeout")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	root.AddCommand(newDimensionsCmd(opts), newThumbnailCmd(opts))
	return root
}

// prober builds a prober and its teardown
func (o *rootOptions) prober() (*probe.Prober, func() error) {
	log := logger.New(o.logLevel, "text")
	open, closeFn := o.open(render.BrowserConfig{
		Bin:        o.chromeBin,
		ControlURL: o.controlURL,
		Timeout:    o.timeout,
	}, log)
	return probe.NewProber(open, log), closeFn
}

func newDimensionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dimensions <video>",
		Short: "Print the native width and height of a video as an aspectRatio object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := readAsset(args[0])
			if err != nil {
				return err
			}

			p, closeFn := opts.prober()
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			dims, err := p.Dimensions(ctx, asset)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dims)
		},
	}
}

type thumbnailResult struct {
	AspectRatio layout.AspectRatio `json:"aspectRatio"`
	Thumbnail   string             `json:"thumbnail"`
	MimeType    string             `json:"mimeType"`
	Size        int                `json:"size"`
}

func newThumbnailCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "thumbnail <video>",
		Short: "Write the first frame of a video as webp and print its aspectRatio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := readAsset(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".thumb.webp"
			}

			p, closeFn := opts.prober()
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			frame, err := p.Thumbnail(ctx, asset)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, frame.Data, 0o644); err != nil {
				return fmt.Errorf("write thumbnail: %w", err)
			}

			return writeJSON(cmd.OutOrStdout(), thumbnailResult{
				AspectRatio: layout.AspectRatio{Width: frame.Width, Height: frame.Height},
				Thumbnail:   output,
				MimeType:    "image/webp",
				Size:        len(frame.Data),
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Thumbnail path (default: <video>.thumb.webp)")
	return cmd
}

// videoTypes covers containers the system mime table often lacks
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

func readAsset(path string) (probe.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return probe.Asset{}, fmt.Errorf("read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := videoTypes[ext]
	if !ok {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return probe.Asset{Name: filepath.Base(path), MimeType: mimeType, Data: data}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
