package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"nespdf/pkg/contract"
	cb64 "nespdf/plugins/chunker/base64"
	rfs "nespdf/plugins/reader/filesystem"
	wfs "nespdf/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewChunker 工厂签名：接收原样 JSON Options。
type NewChunker func(raw json.RawMessage) (contract.Chunker, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Chunker 工厂注册表。
var Chunker = map[string]NewChunker{
	// base64: 标准 base64 + 定长片段 + "acc += ..." 语句
	"base64": func(raw json.RawMessage) (contract.Chunker, error) {
		var opts cb64.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cb64.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Names 返回注册表中的实现名（排序），用于配置校验的提示信息。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
