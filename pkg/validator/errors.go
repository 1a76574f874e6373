package validator

import "strings"

// FieldError 单个字段的校验失败。Field 取自 json 标签。
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors 一次校验的全部失败，按字段声明顺序排列。
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, fe := range v.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Message)
	}
	return b.String()
}

// First 返回第一条失败信息，查询接口只回显这一条。
func (v *ValidationErrors) First() string {
	if v == nil || len(v.Errors) == 0 {
		return ""
	}
	return v.Errors[0].Message
}

// ForField 返回指定字段的失败信息。
func (v *ValidationErrors) ForField(field string) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, fe := range v.Errors {
		if fe.Field == field {
			out = append(out, fe.Message)
		}
	}
	return out
}
