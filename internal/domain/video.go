package domain

// VideoFile 描述数据集中的一个视频文件（扫描阶段只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Base 是不含扩展名的文件名，标签解析只看它
type VideoFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // 小写，例如 ".webm"
	Size    int64
}

// Format 返回容器格式名（不带点），例如 "webm"。
func (v VideoFile) Format() string {
	if len(v.Ext) > 1 && v.Ext[0] == '.' {
		return v.Ext[1:]
	}
	return v.Ext
}
