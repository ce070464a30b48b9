package collect

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var swVersionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)\D+(\d+)`)

// CanonicalVersion 规范化软件版本：x.y.z-build，shortest 时为 x.y.z。
// 空值返回 unavail，无法识别返回 unknown。
func CanonicalVersion(v string, shortest bool) string {
	if strings.TrimSpace(v) == "" {
		return "unavail"
	}
	m := swVersionRe.FindStringSubmatch(v)
	if m == nil {
		return "unknown"
	}
	short := m[1] + "." + m[2] + "." + m[3]
	if shortest {
		return short
	}
	return short + "-" + m[4]
}

// UptimeDays 将 d:h:m:s 转为天数，保留两位小数
func UptimeDays(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return s
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return s
		}
		v[i] = f
	}
	days := math.Round((v[0]+v[1]/24+v[2]/1440)*100) / 100
	out := strconv.FormatFloat(days, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// UptimeClock 将秒数格式化为 DDDDD:HH:MM:SS
func UptimeClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%05d:%02d:%02d:%02d", seconds/86400, seconds%86400/3600, seconds%3600/60, seconds%60)
}
