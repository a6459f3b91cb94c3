package extractor

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"k8s.io/klog/v2"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// Result 提取结果
type Result struct {
	Text      string
	Format    Format
	PageCount int
}

// Extractor 将上传文件转换为纯文本
type Extractor struct{}

var disableConfigOnce sync.Once

func New() *Extractor {
	// pdfcpu 默认会在用户目录下创建配置文件
	disableConfigOnce.Do(api.DisableConfigDir)
	return &Extractor{}
}

var supportedFormats = []string{".pdf", ".txt"}

// SupportedFormats 返回支持的文件扩展名
func SupportedFormats() []string {
	return append([]string(nil), supportedFormats...)
}

// DetectFormat 根据文件名后缀判断格式
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w (supported: %s)", domain.ErrUnsupportedFormat, strings.Join(SupportedFormats(), ", "))
	}
}

// Extract 提取文本；PDF 按页顺序拼接，页之间不插入分隔符
func (e *Extractor) Extract(ctx context.Context, content []byte, filename string) (*Result, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		klog.V(6).Infof("[Extractor] 不支持的文件格式: filename=%s", filename)
		return nil, err
	}

	klog.V(6).Infof("[Extractor] 开始提取: filename=%s, format=%s, size=%d", filename, format, len(content))

	switch format {
	case FormatPDF:
		return extractPDF(content)
	default:
		if !utf8.Valid(content) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtractionFailed, filename)
		}
		return &Result{Text: string(content), Format: FormatText}, nil
	}
}

func extractPDF(content []byte) (*Result, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(content), conf)
	if err != nil {
		klog.Errorf("[Extractor] PDF 校验失败: %v", err)
		return nil, fmt.Errorf("%w: invalid pdf: %v", domain.ErrExtractionFailed, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		klog.Errorf("[Extractor] 打开 PDF 失败: %v", err)
		return nil, fmt.Errorf("%w: open pdf: %v", domain.ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			klog.Errorf("[Extractor] 读取第 %d 页失败: %v", i, err)
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrExtractionFailed, i, err)
		}
		sb.WriteString(text)
	}

	klog.V(6).Infof("[Extractor] PDF 提取完成: pages=%d, chars=%d", pageCount, sb.Len())
	return &Result{Text: sb.String(), Format: FormatPDF, PageCount: pageCount}, nil
}
