package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sweeney/button-sensor/internal/logic"
)

// Byte budgets for rendered responses.
const (
	MaxResponseSize = 4096
	MaxHTMLBody     = 2048
	MaxJSONBody     = 512
)

var (
	// ErrBufferTooSmall means the framed response does not fit the caller's buffer.
	ErrBufferTooSmall = errors.New("response does not fit buffer")
	// ErrBodyTooLarge means a body exceeds its byte budget.
	ErrBodyTooLarge = errors.New("body exceeds budget")
)

// Status responses must never be served from a cache.
var noCacheHeaders = []string{
	"Cache-Control: no-store, no-cache, must-revalidate, max-age=0",
	"Pragma: no-cache",
}

// Colours reported for each state; the dashboard uses them verbatim as CSS.
const (
	colourPressed  = "red"
	colourReleased = "green"
)

// ChannelJSON is one button in the status body.
type ChannelJSON struct {
	Col string `json:"col"`
	St  string `json:"st"`
}

// ButtonsJSON is the status body served on /api/buttons.
type ButtonsJSON struct {
	BtnA ChannelJSON `json:"btnA"`
	BtnB ChannelJSON `json:"btnB"`
}

// Renderer builds framed HTTP responses into caller-owned buffers.
// A Renderer is immutable after construction and safe for concurrent use.
type Renderer struct {
	labels    Labels
	dashboard []byte
}

// NewRenderer executes the dashboard template once for the given labels.
// It fails if the page would exceed MaxHTMLBody.
func NewRenderer(labels Labels) (*Renderer, error) {
	var b bytes.Buffer
	if err := dashboardTmpl.Execute(&b, labels); err != nil {
		return nil, fmt.Errorf("render dashboard: %w", err)
	}
	if b.Len() > MaxHTMLBody {
		return nil, fmt.Errorf("dashboard is %d bytes, budget %d: %w", b.Len(), MaxHTMLBody, ErrBodyTooLarge)
	}
	return &Renderer{labels: labels, dashboard: b.Bytes()}, nil
}

// RenderDashboard writes the HTML page response into dst and returns the
// number of bytes used. On error nothing usable is written and n is 0.
func (r *Renderer) RenderDashboard(dst []byte) (int, error) {
	return frame(dst, "text/html", nil, r.dashboard)
}

// RenderStatus writes the JSON status response for p into dst and returns the
// number of bytes used. On error nothing usable is written and n is 0.
func (r *Renderer) RenderStatus(dst []byte, p logic.Pressed) (int, error) {
	body, err := json.Marshal(ButtonsJSON{
		BtnA: r.channel(p.A),
		BtnB: r.channel(p.B),
	})
	if err != nil {
		return 0, fmt.Errorf("encode status: %w", err)
	}
	if len(body) > MaxJSONBody {
		return 0, fmt.Errorf("status is %d bytes, budget %d: %w", len(body), MaxJSONBody, ErrBodyTooLarge)
	}
	return frame(dst, "application/json", noCacheHeaders, body)
}

func (r *Renderer) channel(pressed bool) ChannelJSON {
	col := colourReleased
	if pressed {
		col = colourPressed
	}
	return ChannelJSON{Col: col, St: r.labels.State(pressed)}
}

// frame writes status line, headers and body into dst. Content-Length is
// always len(body); if the whole response does not fit, dst is left
// untouched and ErrBufferTooSmall is returned.
func frame(dst []byte, contentType string, extra []string, body []byte) (int, error) {
	var scratch [256]byte
	h := scratch[:0]
	h = append(h, "HTTP/1.1 200 OK\r\n"...)
	h = append(h, "Content-Type: "...)
	h = append(h, contentType...)
	h = append(h, "\r\nContent-Length: "...)
	h = strconv.AppendInt(h, int64(len(body)), 10)
	h = append(h, "\r\n"...)
	for _, line := range extra {
		h = append(h, line...)
		h = append(h, "\r\n"...)
	}
	h = append(h, "\r\n"...)

	n := len(h) + len(body)
	if n > len(dst) {
		return 0, fmt.Errorf("need %d bytes, have %d: %w", n, len(dst), ErrBufferTooSmall)
	}
	copy(dst, h)
	copy(dst[len(h):], body)
	return n, nil
}
