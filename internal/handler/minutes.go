package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/model"
	"github.com/weibaohui/minutesagent/backend/internal/service/orchestrator"
	"k8s.io/klog/v2"
)

// RunIDHeader 响应头中的运行 ID，对应日志和运行记录
const RunIDHeader = "X-Run-ID"

// generateErrorPrefix 主流程错误信息前缀，前端按此展示
const generateErrorPrefix = "Error generating acta: "

// Pipeline 纪要生成流程
type Pipeline interface {
	ProcessWithID(ctx context.Context, runID string, upload orchestrator.Upload) *orchestrator.Result
	ProcessCritiqueWithID(ctx context.Context, runID string, upload orchestrator.Upload, prior *model.Minutes, critique string) (*model.Fields, error)
}

type MinutesHandler struct {
	pipeline Pipeline
}

func NewMinutesHandler(pipeline Pipeline) *MinutesHandler {
	return &MinutesHandler{pipeline: pipeline}
}

// GenerateMinutes POST /generate_minutes
// 表单字段：file（必填），words（可选，默认 500）
// 流程中的错误统一以 200 + {"error": ...} 返回
func (h *MinutesHandler) GenerateMinutes(c *gin.Context) {
	upload, status, err := readUpload(c)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if raw := strings.TrimSpace(c.PostForm("words")); raw != "" {
		words, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "words must be an integer"})
			return
		}
		upload.Words = words
	}

	runID := orchestrator.NewRunID()
	c.Header(RunIDHeader, runID)

	res := h.pipeline.ProcessWithID(c.Request.Context(), runID, upload)
	if res.Err != nil {
		c.JSON(http.StatusOK, gin.H{"error": generateErrorPrefix + res.Err.Error()})
		return
	}

	c.JSON(http.StatusOK, res.Minutes)
}

// ProcessCritique POST /process_critique
// 表单字段：file, critique, article（之前生成的纪要 JSON），均为必填
func (h *MinutesHandler) ProcessCritique(c *gin.Context) {
	upload, status, err := readUpload(c)
	if err != nil {
		c.JSON(status, gin.H{"detail": err.Error()})
		return
	}

	critique, ok := c.GetPostForm("critique")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "critique is required"})
		return
	}
	article, ok := c.GetPostForm("article")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "article is required"})
		return
	}

	var prior model.Minutes
	if err := json.Unmarshal([]byte(article), &prior); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("invalid article: %v", err)})
		return
	}

	runID := orchestrator.NewRunID()
	c.Header(RunIDHeader, runID)

	fields, err := h.pipeline.ProcessCritiqueWithID(c.Request.Context(), runID, upload, &prior, critique)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, fields)
}

// readUpload 读取表单中的 file 字段
func readUpload(c *gin.Context) (orchestrator.Upload, int, error) {
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return orchestrator.Upload{}, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", maxErr.Limit)
		}
		return orchestrator.Upload{}, http.StatusBadRequest, errors.New("file is required")
	}

	content, err := readFile(header)
	if err != nil {
		klog.Errorf("读取上传文件失败: filename=%s, error=%v", header.Filename, err)
		return orchestrator.Upload{}, http.StatusBadRequest, fmt.Errorf("read file: %w", err)
	}

	return orchestrator.Upload{Filename: header.Filename, Content: content}, http.StatusOK, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
