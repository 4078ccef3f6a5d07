package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/dicebench/internal/domain"
)

// DefaultExts 是数据集的默认视频扩展名。
var DefaultExts = []string{".webm"}

// ScanVideos 扫描 root 下扩展名属于 exts 的视频文件，并应用目录排除规则。
//
// 规则：
// - exts 大小写不敏感，可带或不带点；为空时使用 DefaultExts
// - excludeDirs 视为相对 root 的路径（绝对路径按原样处理），常用于排除 --out 目录
// - 隐藏目录（以 '.' 开头）一律跳过
// - 输出按相对路径稳定排序
//
// 扫描阶段只做 stat，不读文件内容。
func ScanVideos(root string, exts []string, excludeDirs []string) ([]domain.VideoFile, error) {
	root = filepath.Clean(root)
	allowed, err := normalizeExts(exts)
	if err != nil {
		return nil, err
	}
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.VideoFile, 0, 64)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path != root && (isExcluded(path, excluded) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcluded(path, excluded) {
			return nil
		}

		name := d.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := allowed[ext]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.VideoFile{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     ext,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func normalizeExts(exts []string) (map[string]struct{}, error) {
	if len(exts) == 0 {
		exts = DefaultExts
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ContainsAny(e[1:], `./\`) || len(e) == 1 {
			return nil, fmt.Errorf("非法扩展名：%q", e)
		}
		out[e] = struct{}{}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("扩展名列表为空")
	}
	return out, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
