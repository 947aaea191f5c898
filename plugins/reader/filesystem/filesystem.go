package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"nespdf/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// MaxEngineBytes: 引擎脚本大小上限。0 表示默认 16MiB。
	MaxEngineBytes int64 `json:"max_engine_bytes"`
	// MaxPayloadBytes: 载荷大小上限。0 表示默认 8MiB。
	MaxPayloadBytes int64 `json:"max_payload_bytes"`
}

const (
	defaultBuf        = 64 * 1024
	defaultMaxEngine  = 16 << 20
	defaultMaxPayload = 8 << 20
)

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize    int
	maxEngine  int64
	maxPayload int64
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: defaultBuf, maxEngine: defaultMaxEngine, maxPayload: defaultMaxPayload}
	if opts != nil {
		if opts.BufSize > 0 {
			r.bufSize = opts.BufSize
		}
		if opts.MaxEngineBytes > 0 {
			r.maxEngine = opts.MaxEngineBytes
		}
		if opts.MaxPayloadBytes > 0 {
			r.maxPayload = opts.MaxPayloadBytes
		}
	}
	return r
}

// Load 读取引擎脚本与载荷。
// - 不存在、不可读或不是常规文件：返回 ErrInputMissing（同时保留底层错误）；
// - 载荷路径为 "-" 时读取 STDIN（引擎不支持）；
// - 引擎文本中的非法 UTF-8 序列替换为 U+FFFD，载荷原样字节。
func (r *FileSystem) Load(ctx context.Context, paths contract.InputPaths) (contract.Inputs, error) {
	select {
	case <-ctx.Done():
		return contract.Inputs{}, ctx.Err()
	default:
	}
	if paths.Engine == "-" {
		return contract.Inputs{}, fmt.Errorf("%w: engine cannot be read from stdin", contract.ErrInputMissing)
	}
	eng, err := r.readFile(ctx, "engine", paths.Engine, r.maxEngine)
	if err != nil {
		return contract.Inputs{}, err
	}
	var payload []byte
	payloadID := contract.FileID("stdin")
	if paths.Payload == "-" {
		payload, err = r.readAll(ctx, "payload", os.Stdin, r.maxPayload)
	} else {
		payload, err = r.readFile(ctx, "payload", paths.Payload, r.maxPayload)
		payloadID = contract.NormalizeFileID(paths.Payload)
	}
	if err != nil {
		return contract.Inputs{}, err
	}
	return contract.Inputs{
		EngineID:  contract.NormalizeFileID(paths.Engine),
		Engine:    strings.ToValidUTF8(string(eng), "\uFFFD"),
		PayloadID: payloadID,
		Payload:   payload,
	}, nil
}

func (r *FileSystem) readFile(ctx context.Context, what, path string, limit int64) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: %s path is empty", contract.ErrInputMissing, what)
	}
	// 跟随符号链接；目标必须是常规文件
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", contract.ErrInputMissing, what, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s %s is not a regular file", contract.ErrInputMissing, what, path)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s %s: size %d exceeds limit %d", what, path, info.Size(), limit)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", contract.ErrInputMissing, what, path, err)
	}
	brc := newBufferedCloser(f, r.bufSize)
	defer brc.Close()
	return r.readAll(ctx, what, brc, limit)
}

// readAll 读取至多 limit 字节；超限报错。
func (r *FileSystem) readAll(ctx context.Context, what string, rd io.Reader, limit int64) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	b, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	if int64(len(b)) > limit {
		return nil, errors.New(what + ": exceeds size limit")
	}
	return b, nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = defaultBuf
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

var _ contract.Reader = (*FileSystem)(nil)
