package model

import (
	"strings"
)

// NoneValue 源文本未提及时的占位值
const NoneValue = "none"

// Minutes 会议纪要，整个处理流程共享的可变记录
// Source 在文本提取后只读
type Minutes struct {
	Source      string     `json:"source"`
	Words       int        `json:"words"`
	Title       string     `json:"title"`
	Date        string     `json:"date"`
	Attendees   []Attendee `json:"attendees"`
	Summary     string     `json:"summary"`
	Takeaways   []string   `json:"takeaways"`
	Conclusions []string   `json:"conclusions"`
	NextMeeting []string   `json:"next_meeting"`
	Tasks       []Task     `json:"tasks"`
	Critique    *string    `json:"critique"`
	Message     *string    `json:"message"`
}

type Attendee struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Role     string `json:"role"`
}

type Task struct {
	Responsible string `json:"responsible"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Fields 模型返回的纪要字段（撰写/修订结果）
// 不包含 source/words/critique，合并时不会覆盖这些字段
type Fields struct {
	Title       string     `json:"title"`
	Date        string     `json:"date"`
	Attendees   []Attendee `json:"attendees"`
	Summary     string     `json:"summary"`
	Takeaways   []string   `json:"takeaways"`
	Conclusions []string   `json:"conclusions"`
	NextMeeting []string   `json:"next_meeting"`
	Tasks       []Task     `json:"tasks"`
	Message     *string    `json:"message"`
}

// Merge 将模型返回的字段写入纪要，覆盖之前的撰写结果
func (m *Minutes) Merge(f *Fields) {
	f.Normalize()
	m.Title = f.Title
	m.Date = f.Date
	m.Attendees = f.Attendees
	m.Summary = f.Summary
	m.Takeaways = f.Takeaways
	m.Conclusions = f.Conclusions
	m.NextMeeting = f.NextMeeting
	m.Tasks = f.Tasks
	m.Message = f.Message
}

// Normalize 把空的参会人/任务字段补为 none，缺失的列表补为空列表
func (f *Fields) Normalize() {
	if f.Attendees == nil {
		f.Attendees = []Attendee{}
	}
	if f.Takeaways == nil {
		f.Takeaways = []string{}
	}
	if f.Conclusions == nil {
		f.Conclusions = []string{}
	}
	if f.NextMeeting == nil {
		f.NextMeeting = []string{}
	}
	if f.Tasks == nil {
		f.Tasks = []Task{}
	}
	for i := range f.Attendees {
		a := &f.Attendees[i]
		a.Name = orNone(a.Name)
		a.Position = orNone(a.Position)
		a.Role = orNone(a.Role)
	}
	for i := range f.Tasks {
		t := &f.Tasks[i]
		t.Responsible = orNone(t.Responsible)
		t.Date = orNone(t.Date)
	}
}

// MissingTasks 返回未被任务覆盖的 next_meeting 条目
// 任务数不少于条目数时视为全部覆盖，模型通常会改写措辞
func (m *Minutes) MissingTasks() []string {
	if len(m.Tasks) >= len(m.NextMeeting) {
		return nil
	}
	var missing []string
	for _, item := range m.NextMeeting {
		needle := strings.ToLower(strings.TrimSpace(item))
		if needle == "" {
			continue
		}
		found := false
		for _, t := range m.Tasks {
			if strings.Contains(strings.ToLower(t.Description), needle) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, item)
		}
	}
	return missing
}

func orNone(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") {
		return NoneValue
	}
	return v
}
