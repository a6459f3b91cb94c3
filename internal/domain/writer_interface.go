package domain

import (
	"errors"
)

type WriterName string

var (
	Drafter WriterName = "Drafter" // 纪要撰写
	Critic  WriterName = "Critic"  // 纪要评审
)

// 错误定义
var (
	ErrUnsupportedFormat    = errors.New("Unsupported file format")
	ErrExtractionFailed     = errors.New("text extraction failed")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrServiceError         = errors.New("generation service error")
)

// Kind 返回错误类别名称，用于指标标签和运行记录
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrMalformedModelOutput):
		return "malformed_model_output"
	case errors.Is(err, ErrServiceError):
		return "service_error"
	default:
		return "internal"
	}
}
