package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// StripCodeFence 去掉模型回复首尾的反引号围栏以及 json 语言标记
// 只处理首尾，不会在正文中查找 JSON
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	return strings.TrimSpace(s)
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// DropKeys 将 v 序列化为 JSON 对象并删除指定键
// dropEmpty 中的键只在值为 null、空字符串、空数组或空对象时删除
func DropKeys(v any, keys []string, dropEmpty []string) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(obj, k)
	}
	for _, k := range dropEmpty {
		if val, ok := obj[k]; ok && isEmpty(val) {
			delete(obj, k)
		}
	}
	return obj, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
