// Package assets serves item artwork from the asset directory.
package assets

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

type Catalog interface {
	ItemByName(ctx context.Context, name string) (store.Item, error)
}

type Asset struct {
	Name        string
	ContentType string
	Data        []byte
}

type Server struct {
	files   fs.FS
	catalog Catalog
}

func New(files fs.FS, catalog Catalog) *Server {
	return &Server{files: files, catalog: catalog}
}

// Load returns the asset file of the named item. Unknown items fail with
// engine.ErrItemNotFound and missing or unreadable files with
// engine.ErrAssetUnavailable.
func (s *Server) Load(ctx context.Context, itemName string) (Asset, error) {
	it, err := s.catalog.ItemByName(ctx, itemName)
	if err != nil {
		return Asset{}, err
	}
	p := path.Clean(strings.TrimPrefix(strings.ReplaceAll(it.AssetPath, "\\", "/"), "/"))
	if !fs.ValidPath(p) || p == "." {
		return Asset{}, fmt.Errorf("asset %q for %s: %w", it.AssetPath, it.Name, engine.ErrAssetUnavailable)
	}
	data, err := fs.ReadFile(s.files, p)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q for %s: %w: %v", p, it.Name, engine.ErrAssetUnavailable, err)
	}
	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Asset{Name: path.Base(p), ContentType: ct, Data: data}, nil
}
