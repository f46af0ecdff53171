package ioctl

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/go-cmd/cmd"
)

// GeneratePartDeviceName 根据磁盘路径与分区号生成分区设备路径.
// 例如 /dev/sda + 1 = /dev/sda1, /dev/nvme0n1 + 1 = /dev/nvme0n1p1.
func GeneratePartDeviceName(diskPath string, partIndex int) string {
	if diskPath == "" {
		return strconv.Itoa(partIndex)
	}
	partSuffix := strconv.Itoa(partIndex)
	if unicode.IsDigit(rune(diskPath[len(diskPath)-1])) {
		partSuffix = "p" + partSuffix
	}
	return diskPath + partSuffix
}

// ExecV2 直接以argv方式执行name, 参数不经过shell解释, 返回退出码、标准输出与标准错误.
// 路径等外部输入只能经由此函数传给外部命令.
func ExecV2(name string, args ...string) (returnCode int, out, errOut string) {
	c := cmd.NewCmd(name, args...)
	status := <-c.Start()
	returnCode = status.Exit
	if status.Error != nil {
		if returnCode == 0 {
			returnCode = -1
		}
		errOut = status.Error.Error()
	}
	if len(status.Stdout) != 0 {
		out = strings.Join(status.Stdout, "\n")
	}
	if len(status.Stderr) != 0 {
		errOut = strings.Join(status.Stderr, "\n")
	}
	return returnCode, out, errOut
}
