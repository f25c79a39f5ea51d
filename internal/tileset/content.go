package tileset

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/klauspost/compress/zstd"
)

// Content is the decoded payload of a tile. Process advances GPU-side
// preparation by one bounded step and reports when the content is ready.
type Content interface {
	ByteLength() int64
	Process() (ready bool, err error)
	Destroy()
}

// Decoder turns fetched bytes into Content. It runs on the frame thread.
type Decoder interface {
	Decode(url string, data []byte) (Content, error)
}

// ExternalTileset is content that is itself a tileset document. Its root is
// attached as the only child of the requesting tile.
type ExternalTileset struct {
	URL        string
	Descriptor *Descriptor
}

func (e *ExternalTileset) ByteLength() int64      { return 0 }
func (e *ExternalTileset) Process() (bool, error) { return true, nil }
func (e *ExternalTileset) Destroy()               {}

const (
	defaultStepBytes = 256 * 1024
	zstdResourceKey  = "zstd-decoder"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// RawDecoder keeps payloads as opaque byte buffers. Zstandard frames are
// decompressed during the first processing step and tileset JSON documents
// become ExternalTileset content.
type RawDecoder struct {
	StepBytes int
	shared    *SharedResources
}

var _ Decoder = (*RawDecoder)(nil)

func NewRawDecoder(shared *SharedResources) *RawDecoder {
	if shared == nil {
		shared = NewSharedResources()
	}
	return &RawDecoder{StepBytes: defaultStepBytes, shared: shared}
}

func (d *RawDecoder) Decode(rawURL string, data []byte) (Content, error) {
	if len(data) == 0 {
		return nil, &ContentLoadError{URL: rawURL, Message: "empty payload"}
	}
	if isTilesetDocument(rawURL, data) {
		desc, err := ParseDescriptor(data)
		if err != nil {
			return nil, &ContentLoadError{URL: rawURL, Message: err.Error()}
		}
		return &ExternalTileset{URL: rawURL, Descriptor: desc}, nil
	}
	step := d.StepBytes
	if step <= 0 {
		step = defaultStepBytes
	}
	return &RawContent{
		url:        rawURL,
		payload:    data,
		step:       step,
		compressed: bytes.HasPrefix(data, zstdMagic),
		shared:     d.shared,
	}, nil
}

func isTilesetDocument(rawURL string, data []byte) bool {
	if u, err := url.Parse(rawURL); err == nil && path.Ext(u.Path) == ".json" {
		return true
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && bytes.Contains(data, []byte(`"asset"`))
}

type RawContent struct {
	url        string
	payload    []byte
	step       int
	processed  int
	compressed bool
	acquired   bool
	shared     *SharedResources
}

var _ Content = (*RawContent)(nil)

func (c *RawContent) URL() string       { return c.url }
func (c *RawContent) Bytes() []byte     { return c.payload }
func (c *RawContent) ByteLength() int64 { return int64(len(c.payload)) }

func (c *RawContent) Process() (bool, error) {
	if c.compressed {
		out, err := c.decompress()
		if err != nil {
			return false, &ContentLoadError{URL: c.url, Message: err.Error()}
		}
		c.payload = out
		c.compressed = false
		return len(out) == 0, nil
	}
	c.processed += c.step
	return c.processed >= len(c.payload), nil
}

func (c *RawContent) decompress() ([]byte, error) {
	v, err := c.shared.Acquire(zstdResourceKey, func() (any, func(any), error) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return dec, func(v any) { v.(*zstd.Decoder).Close() }, nil
	})
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	c.acquired = true
	out, err := v.(*zstd.Decoder).DecodeAll(c.payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (c *RawContent) Destroy() {
	if c.acquired {
		c.shared.Release(zstdResourceKey)
		c.acquired = false
	}
	c.payload = nil
}

// MultiContent groups the contents of a tile with several content URLs.
type MultiContent struct {
	Parts []Content
}

var _ Content = (*MultiContent)(nil)

func (m *MultiContent) ByteLength() int64 {
	var n int64
	for _, p := range m.Parts {
		n += p.ByteLength()
	}
	return n
}

func (m *MultiContent) Process() (bool, error) {
	ready := true
	for _, p := range m.Parts {
		ok, err := p.Process()
		if err != nil {
			return false, err
		}
		ready = ready && ok
	}
	return ready, nil
}

func (m *MultiContent) Destroy() {
	for _, p := range m.Parts {
		p.Destroy()
	}
}

var errExternalInMulti = errors.New("tileset content is not allowed alongside other contents")

func decodeAll(d Decoder, urls []string, payloads [][]byte) (Content, error) {
	if len(payloads) == 1 {
		return d.Decode(urls[0], payloads[0])
	}
	multi := &MultiContent{}
	for i, data := range payloads {
		c, err := d.Decode(urls[i], data)
		if err != nil {
			multi.Destroy()
			return nil, err
		}
		if _, ok := c.(*ExternalTileset); ok {
			multi.Destroy()
			return nil, &ContentLoadError{URL: urls[i], Message: errExternalInMulti.Error()}
		}
		multi.Parts = append(multi.Parts, c)
	}
	return multi, nil
}
