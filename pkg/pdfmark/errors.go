package pdfmark

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 错误类别
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindUnparsableColor 颜色无法解析，使用黑色回退后继续
	KindUnparsableColor
	// KindPageRasterFailure 页面无法读取或光栅化，跳过该页
	KindPageRasterFailure
	// KindDocumentOpenFailure 文档无法打开，整个操作失败
	KindDocumentOpenFailure
	// KindSerializationFailure 输出序列化失败，不返回任何输出
	KindSerializationFailure
	// KindGeometryMismatch 渲染尺寸与原生尺寸宽高比不一致，仅警告
	KindGeometryMismatch
	KindInvalidDescriptor
	KindPageOutOfRange
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnparsableColor:
		return "UnparsableColor"
	case KindPageRasterFailure:
		return "PageRasterFailure"
	case KindDocumentOpenFailure:
		return "DocumentOpenFailure"
	case KindSerializationFailure:
		return "SerializationFailure"
	case KindGeometryMismatch:
		return "GeometryMismatch"
	case KindInvalidDescriptor:
		return "InvalidDescriptor"
	case KindPageOutOfRange:
		return "PageOutOfRange"
	case KindCanceled:
		return "Canceled"
	}
	return "Unknown"
}

var (
	ErrUnparsableColor   = errors.New("unparsable color")
	ErrInvalidDescriptor = errors.New("invalid watermark descriptor")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrDocumentOpen      = errors.New("document cannot be opened")
	ErrSerialization     = errors.New("document serialization failed")
)

// Error 文档级错误，操作中止且不返回输出
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PageError 页面级错误，收集后与输出一起返回
type PageError struct {
	Page int
	Kind ErrorKind
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Kind, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// KindOf 返回 err 链上第一个带类别的错误的类别；
// 没有类别时按哨兵错误推断
func KindOf(err error) ErrorKind {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrUnparsableColor):
		return KindUnparsableColor
	case errors.Is(err, ErrInvalidDescriptor):
		return KindInvalidDescriptor
	case errors.Is(err, ErrPageOutOfRange):
		return KindPageOutOfRange
	case errors.Is(err, ErrDocumentOpen):
		return KindDocumentOpenFailure
	case errors.Is(err, ErrSerialization):
		return KindSerializationFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindUnknown
}

func newPageError(page int, kind ErrorKind, err error) *PageError {
	return &PageError{Page: page, Kind: kind, Err: err}
}
