package session

import "strings"

// PathSeparator hop 路径中设备名之间的分隔符
const PathSeparator = " → "

// Frame hop 路径上的一台设备
type Frame struct {
	Name     string   `json:"name"`
	Prompt   string   `json:"prompt"`
	Identity Identity `json:"identity"`
}

// TunnelStack 从直连会话依次进入的下级设备，长度即当前 hop 深度
type TunnelStack struct {
	frames []Frame
}

func (t *TunnelStack) Depth() int { return len(t.frames) }

func (t *TunnelStack) Push(f Frame) { t.frames = append(t.frames, f) }

// Pop 弹出栈顶
func (t *TunnelStack) Pop() (Frame, bool) {
	if len(t.frames) == 0 {
		return Frame{}, false
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f, true
}

// Top 当前设备
func (t *TunnelStack) Top() (Frame, bool) {
	if len(t.frames) == 0 {
		return Frame{}, false
	}
	return t.frames[len(t.frames)-1], true
}

// Parent 栈顶之下的设备，深度为 1 时为 root
func (t *TunnelStack) Parent(root Frame) Frame {
	if len(t.frames) < 2 {
		return root
	}
	return t.frames[len(t.frames)-2]
}

// Frames 栈的副本，自底向上
func (t *TunnelStack) Frames() []Frame {
	return append([]Frame(nil), t.frames...)
}

// Path 从 root 开始拼接 hop 路径
func (t *TunnelStack) Path(root string) string {
	names := make([]string, 0, len(t.frames)+1)
	names = append(names, root)
	for _, f := range t.frames {
		names = append(names, f.Name)
	}
	return strings.Join(names, PathSeparator)
}

func (t *TunnelStack) Reset() { t.frames = nil }
