package probe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atmopics/share/common/layout"
	"github.com/atmopics/share/common/render"
	"github.com/go-rod/rod"
)

const createObjectURLJS = `(b64, type) => {
	const bin = atob(b64);
	const bytes = new Uint8Array(bin.length);
	for (let i = 0; i < bin.length; i++) bytes[i] = bin.charCodeAt(i);
	return URL.createObjectURL(new Blob([bytes], { type }));
}`

const revokeObjectURLJS = `(url) => URL.revokeObjectURL(url)`

const loadMetadataJS = `(src) => new Promise((resolve, reject) => {
	const video = document.createElement('video');
	video.preload = 'metadata';
	video.muted = true;
	video.onloadedmetadata = () => resolve({ width: video.videoWidth, height: video.videoHeight });
	video.onerror = () => reject(new Error('media error ' + (video.error ? video.error.code : 'unknown')));
	video.src = src;
})`

const captureFirstFrameJS = `(src, quality) => new Promise((resolve, reject) => {
	const video = document.createElement('video');
	video.preload = 'auto';
	video.muted = true;
	video.playsInline = true;
	video.onloadeddata = () => { video.currentTime = 0; };
	video.onseeked = () => {
		const canvas = document.createElement('canvas');
		canvas.width = video.videoWidth;
		canvas.height = video.videoHeight;
		const ctx = canvas.getContext('2d');
		if (!ctx) return reject(new Error('no 2d canvas context'));
		ctx.drawImage(video, 0, 0, canvas.width, canvas.height);
		resolve({ dataURL: canvas.toDataURL('image/webp', quality), width: canvas.width, height: canvas.height });
	};
	video.onerror = () => reject(new Error('media error ' + (video.error ? video.error.code : 'unknown')));
	video.src = src;
})`

// probeCanvas is the viewport of probe pages. Nothing is drawn to it.
var probeCanvas = layout.Canvas{Width: 640, Height: 360}

// revokeTimeout bounds the release call, which runs on a context that
// outlives the probe's own deadline
const revokeTimeout = 2 * time.Second

// RodRuntime evaluates media probes in a Chromium page
type RodRuntime struct {
	page *rod.Page
}

// RodOpener opens a fresh page of browser per probe
func RodOpener(browser *render.Browser) OpenFunc {
	return func(ctx context.Context) (Runtime, func(), error) {
		page, done, err := browser.NewPage(ctx, probeCanvas)
		if err != nil {
			return nil, nil, err
		}
		return &RodRuntime{page: page}, done, nil
	}
}

func (r *RodRuntime) CreateObjectURL(ctx context.Context, asset Asset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := r.page.Eval(createObjectURLJS, base64.StdEncoding.EncodeToString(asset.Data), asset.MimeType)
	if err != nil {
		return "", fmt.Errorf("create object url: %w", err)
	}
	url := res.Value.Str()
	if !strings.HasPrefix(url, "blob:") {
		return "", fmt.Errorf("create object url: unexpected result %q", url)
	}
	return url, nil
}

// RevokeObjectURL runs on ctx rather than the page's probe deadline, so a
// probe that timed out still releases its blob. The other calls stay on the
// page context, which carries the caller's context and the browser timeout.
func (r *RodRuntime) RevokeObjectURL(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()
	if _, err := r.page.Context(ctx).Eval(revokeObjectURLJS, url); err != nil {
		return fmt.Errorf("revoke object url: %w", err)
	}
	return nil
}

func (r *RodRuntime) LoadMetadata(ctx context.Context, url string) (layout.AspectRatio, error) {
	if err := ctx.Err(); err != nil {
		return layout.AspectRatio{}, err
	}
	res, err := r.page.Eval(loadMetadataJS, url)
	if err != nil {
		return layout.AspectRatio{}, fmt.Errorf("load metadata: %w", err)
	}
	return layout.AspectRatio{
		Width:  res.Value.Get("width").Int(),
		Height: res.Value.Get("height").Int(),
	}, nil
}

func (r *RodRuntime) CaptureFirstFrame(ctx context.Context, url string, quality float64) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	res, err := r.page.Eval(captureFirstFrameJS, url, quality)
	if err != nil {
		return Frame{}, fmt.Errorf("capture first frame: %w", err)
	}

	data, err := decodeDataURL(res.Value.Get("dataURL").Str(), "image/webp")
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Data:   data,
		Width:  res.Value.Get("width").Int(),
		Height: res.Value.Get("height").Int(),
	}, nil
}

// decodeDataURL extracts the payload of a base64 data URL of the given type.
// Browsers fall back to image/png when they can not encode the requested type.
func decodeDataURL(dataURL, wantType string) ([]byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("still is not a base64 data url")
	}
	if got := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"); got != wantType {
		return nil, fmt.Errorf("browser encoded %s, want %s", got, wantType)
	}
	return base64.StdEncoding.DecodeString(payload)
}
