package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctavolazzi/mission-control/pkg/parser"
)

// browseItem is one directory entry in the add-repo browser.
type browseItem struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	IsDirectory     bool   `json:"isDirectory"`
	HasWorkEfforts  bool   `json:"hasWorkEfforts"`
	WorkEffortCount int    `json:"workEffortCount"`
	IsAdded         bool   `json:"isAdded"`
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.browseRoot
	}
	path = filepath.Clean(path)

	// Confine browsing to the configured root.
	if !withinRoot(s.browseRoot, path) {
		writeError(w, http.StatusBadRequest, "path is outside the allowed root")
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read directory: %v", err)
		return
	}

	items := make([]browseItem, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || name == "node_modules" {
			continue
		}
		item := browseItem{
			Name:        name,
			Path:        filepath.Join(path, name),
			IsDirectory: entry.IsDir(),
		}
		if entry.IsDir() {
			if weDir := parser.FindWorkEffortsDir(item.Path); weDir != "" {
				item.HasWorkEfforts = true
				item.WorkEffortCount = countWorkEfforts(weDir)
			}
			item.IsAdded = s.registry.HasPath(item.Path)
		}
		items = append(items, item)
	}

	// Work-efforts-bearing directories first, then alphabetical.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].HasWorkEfforts != items[j].HasWorkEfforts {
			return items[i].HasWorkEfforts
		}
		return items[i].Name < items[j].Name
	})

	canGoUp := path != s.browseRoot
	parent := ""
	if canGoUp {
		parent = filepath.Dir(path)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"parent":  parent,
		"canGoUp": canGoUp,
		"items":   items,
	})
}

// withinRoot reports whether path is root or inside it.
func withinRoot(root, path string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func countWorkEfforts(weDir string) int {
	entries, err := os.ReadDir(weDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() && (parser.WEDirRe.MatchString(entry.Name()) || parser.JDCategoryRe.MatchString(entry.Name())) {
			count++
		}
	}
	return count
}
