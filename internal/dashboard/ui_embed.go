package dashboard

import (
	"embed"
	"io/fs"
)

//go:embed ui/*
var uiAssets embed.FS

func indexPage() ([]byte, error) {
	sub, err := fs.Sub(uiAssets, "ui")
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(sub, "index.html")
}
