package shipper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/oriys/azlogforwarder/internal/domain"
)

var gzipPool = sync.Pool{New: func() any { return gzip.NewWriter(nil) }}

// Compress 序列化 [{common, <kind>: items}] 并进行 gzip 压缩。
// 每次调用使用独立的输出缓冲区，压缩器从池中复用。
func Compress(common domain.Common, kind domain.Kind, items []any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzipPool.Get().(*gzip.Writer)
	defer gzipPool.Put(zw)
	zw.Reset(&buf)

	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(domain.Payload(common, kind, items)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCompression, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCompression, err)
	}
	return buf.Bytes(), nil
}
