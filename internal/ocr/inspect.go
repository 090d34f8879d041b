package ocr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// MaxSyncBytes は同期抽出に渡せる最大サイズです。
const MaxSyncBytes = 10 * 1024 * 1024

// ErrUnsupportedDocument は同期抽出できない入力です。
var ErrUnsupportedDocument = errors.New("unsupported document")

// DocumentInfo は同期抽出前に確認したドキュメント情報です。
type DocumentInfo struct {
	MIME  string `json:"mime"`
	Size  int    `json:"size"`
	Pages int    `json:"pages"`
}

// InspectDocument は内容から形式を判定し、同期抽出できるか確認します。
// JPEG / PNG と1ページの PDF のみ受け付けます。
func InspectDocument(data []byte) (*DocumentInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupportedDocument)
	}
	if len(data) > MaxSyncBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrUnsupportedDocument, len(data), MaxSyncBytes)
	}

	mtype := mimetype.Detect(data)
	info := &DocumentInfo{MIME: mtype.String(), Size: len(data), Pages: 1}
	switch {
	case mtype.Is("image/jpeg"), mtype.Is("image/png"):
		return info, nil
	case mtype.Is("application/pdf"):
		pages, err := pdfapi.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedDocument, err)
		}
		info.Pages = pages
		if pages != 1 {
			return nil, fmt.Errorf("%w: pdf has %d pages, synchronous extraction accepts 1", ErrUnsupportedDocument, pages)
		}
		return info, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, mtype.String())
	}
}
