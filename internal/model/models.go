package model

import (
	"time"
)

// Run 单次流水线执行的记录，只保存元数据，不保存纪要内容
type Run struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	Kind       string    `json:"kind" gorm:"size:50;not null"` // generate, revise
	Filename   string    `json:"filename" gorm:"size:255"`
	Words      int       `json:"words"`
	State      string    `json:"state" gorm:"size:50;index"` // 最终状态：done, failed
	Path       string    `json:"path" gorm:"size:50"`        // draft, revise
	Critiqued  bool      `json:"critiqued"`                  // 评审是否给出了意见
	ErrorKind  string    `json:"error_kind" gorm:"size:50"`
	ErrorMsg   string    `json:"error_msg" gorm:"size:1000"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// Run kinds
const (
	RunKindGenerate = "generate"
	RunKindRevise   = "revise"
)
