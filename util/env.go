package util

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	expandRegex = regexp.MustCompile("%([a-zA-Z_0-9]+)%")
)

// ExpandEnv 展开字符串中的环境变量, 同时支持 $VAR, ${VAR} 与Windows风格的 %VAR%.
func ExpandEnv(v string) string {
	v = expandRegex.ReplaceAllString(v, "$${$1}")
	return os.Expand(v, getenv)
}

// ExpandPath 展开环境变量与前导 ~ 并返回清理后的路径, 空串原样返回.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	p = ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}

func getenv(v string) string {
	if v == "$" {
		return "$"
	}
	return os.Getenv(v)
}
