// Package qr renders QR codes for payment addresses, URIs, and checkout
// links. Rendered images are cached; regenerating the same code for the same
// payment is a cache hit.
package qr

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/bitnovo/pay-mcp/internal/qrcache"
)

// QR content types. They carry different payloads for the same payment, so
// they cache under distinct keys.
const (
	TypeAddress    = "address"
	TypePaymentURI = "payment_uri"
	TypeWebURL     = "web_url"
)

const (
	MinSize     = 128
	MaxSize     = 1024
	DefaultSize = 300

	StyleBasic   = "basic"
	StyleHighRes = "high_res"
)

// Options controls a single rendering.
type Options struct {
	QRType string
	Size   int
	Style  string
}

// Generator renders PNG QR codes as base64 data URIs.
type Generator struct {
	cache  *qrcache.Cache
	logger *slog.Logger
}

// NewGenerator creates a generator. cache may be nil to disable caching.
func NewGenerator(cache *qrcache.Cache, logger *slog.Logger) *Generator {
	return &Generator{
		cache:  cache,
		logger: logger.With("component", "qr"),
	}
}

// Generate renders content as a QR image for the given payment identifier,
// consulting the cache first.
func (g *Generator) Generate(identifier, content string, opts Options) (*qrcache.Image, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content is empty")
	}
	opts = normalize(opts)

	key := qrcache.Key{
		Identifier: identifier,
		QRType:     opts.QRType,
		Size:       opts.Size,
		Style:      opts.Style,
	}
	if g.cache != nil {
		if img := g.cache.Get(key); img != nil {
			g.logger.Debug("qr cache hit", "identifier", identifier, "type", opts.QRType)
			return img, nil
		}
	}

	level := qrcode.Medium
	if opts.Style == StyleHighRes {
		level = qrcode.High
	}
	png, err := qrcode.Encode(content, level, opts.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr for %s: %w", identifier, err)
	}

	img := qrcache.Image{
		Data:       "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Format:     "png",
		Style:      opts.Style,
		Dimensions: fmt.Sprintf("%dx%d", opts.Size, opts.Size),
	}
	if g.cache != nil {
		g.cache.Set(key, img)
	}
	g.logger.Debug("qr rendered",
		"identifier", identifier,
		"type", opts.QRType,
		"size", opts.Size,
		"bytes", len(png),
	)
	return &img, nil
}

func normalize(opts Options) Options {
	if opts.QRType == "" {
		opts.QRType = TypePaymentURI
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Size < MinSize {
		opts.Size = MinSize
	}
	if opts.Size > MaxSize {
		opts.Size = MaxSize
	}
	if opts.Style == "" {
		opts.Style = StyleBasic
	}
	return opts
}
