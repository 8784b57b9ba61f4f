// disk_usage.go — получение информации об ёмкости диска хранилища.
// Платформозависимый код для Unix-подобных систем.
package handlers

import (
	"fmt"
	"syscall"
)

// diskUsage возвращает информацию о дисковом пространстве в директории.
// Возвращает total, used, available в байтах.
func diskUsage(path string) (total, used, available int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total = int64(stat.Blocks) * int64(stat.Bsize)
	available = int64(stat.Bavail) * int64(stat.Bsize)
	used = total - available

	return total, used, available, nil
}
