package preview

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"nespdf/internal/bridge"
	"nespdf/internal/layout"
)

// 预览引擎种类。
const (
	EnginePattern = "pattern"
	EngineImage   = "image"
)

var errNotLoaded = errors.New("payload not loaded")

// Kinds 返回受支持的预览引擎名。
func Kinds() []string { return []string{EnginePattern, EngineImage} }

// Factory 返回给定种类的引擎工厂；w×h 为源帧分辨率。image 种类需要 img。
func Factory(kind string, img image.Image, w, h int) (bridge.EngineFactory, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("preview: bad frame size %dx%d", w, h)
	}
	switch kind {
	case EnginePattern, "":
		return func(onFrame func([]uint32), _ func(l, r float64)) (bridge.Engine, error) {
			return newPattern(w, h, onFrame), nil
		}, nil
	case EngineImage:
		if img == nil {
			return nil, errors.New("preview: image engine needs an image")
		}
		px := Scale(img, w, h)
		return func(onFrame func([]uint32), _ func(l, r float64)) (bridge.Engine, error) {
			return &imageEngine{w: w, h: h, src: px, buf: make([]uint32, w*h), onFrame: onFrame, held: map[string]bool{}}, nil
		}, nil
	default:
		return nil, fmt.Errorf("preview: unknown engine %q", kind)
	}
}

// LoadImage 解码 PNG/JPEG/GIF（以及 BMP/WebP）。
func LoadImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("preview: decode image: %w", err)
	}
	return img, nil
}

// Scale 把图像缩放到 w×h 并打包为 0xRRGGBB 像素。
func Scale(img image.Image, w, h int) []uint32 {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	out := make([]uint32, w*h)
	for i := range out {
		p := dst.Pix[i*4 : i*4+4]
		out[i] = uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])
	}
	return out
}

func gray(v int) uint32 {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	c := uint32(v)
	return c<<16 | c<<8 | c
}

// held 为八个输入通道的按下状态。
type held map[string]bool

func (h held) SignalOn(ch string) error  { h[ch] = true; return nil }
func (h held) SignalOff(ch string) error { delete(h, ch); return nil }

// dir 由方向通道得出位移。
func (h held) dir() (dx, dy int) {
	if h[layout.ChanLeft] {
		dx--
	}
	if h[layout.ChanRight] {
		dx++
	}
	if h[layout.ChanUp] {
		dy--
	}
	if h[layout.ChanDown] {
		dy++
	}
	return dx, dy
}

// patternEngine: 斜向滚动条纹 + 由方向键移动的光标方块。
// A 放大光标，B 反相背景，Start 光标归位。
type patternEngine struct {
	held
	w, h    int
	buf     []uint32
	onFrame func([]uint32)
	loaded  bool
	t       int
	x, y    int
}

func newPattern(w, h int, onFrame func([]uint32)) *patternEngine {
	return &patternEngine{held: held{}, w: w, h: h, buf: make([]uint32, w*h), onFrame: onFrame, x: w / 2, y: h / 2}
}

func (e *patternEngine) Load(p []byte) error {
	if len(p) == 0 {
		return errNotLoaded
	}
	e.loaded = true
	return nil
}

func (e *patternEngine) Advance() error {
	if !e.loaded {
		return errNotLoaded
	}
	e.t++
	dx, dy := e.dir()
	e.x = wrap(e.x+dx*4, e.w)
	e.y = wrap(e.y+dy*4, e.h)
	if e.held[layout.ChanStart] {
		e.x, e.y = e.w/2, e.h/2
	}
	for y := 0; y < e.h; y++ {
		for x := 0; x < e.w; x++ {
			v := ((x + y + e.t*2) / 16 % 4) * 50
			if e.held[layout.ChanB] {
				v = 200 - v
			}
			e.buf[y*e.w+x] = gray(v)
		}
	}
	size := 8
	if e.held[layout.ChanA] {
		size = 20
	}
	for y := e.y - size; y < e.y+size; y++ {
		for x := e.x - size; x < e.x+size; x++ {
			if x >= 0 && x < e.w && y >= 0 && y < e.h {
				e.buf[y*e.w+x] = 0xffffff
			}
		}
	}
	if e.onFrame != nil {
		e.onFrame(e.buf)
	}
	return nil
}

// imageEngine: 静态图像，方向键平移。
type imageEngine struct {
	held
	w, h    int
	src     []uint32
	buf     []uint32
	onFrame func([]uint32)
	loaded  bool
	ox, oy  int
}

func (e *imageEngine) Load(p []byte) error {
	if len(p) == 0 {
		return errNotLoaded
	}
	e.loaded = true
	return nil
}

func (e *imageEngine) Advance() error {
	if !e.loaded {
		return errNotLoaded
	}
	dx, dy := e.dir()
	e.ox = wrap(e.ox+dx*2, e.w)
	e.oy = wrap(e.oy+dy*2, e.h)
	for y := 0; y < e.h; y++ {
		sy := (y + e.oy) % e.h
		for x := 0; x < e.w; x++ {
			e.buf[y*e.w+x] = e.src[sy*e.w+(x+e.ox)%e.w]
		}
	}
	if e.onFrame != nil {
		e.onFrame(e.buf)
	}
	return nil
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
