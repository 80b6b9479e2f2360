// Package assets embeds the page stylesheet and the live-reload client
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetCSS returns the page stylesheet
func GetCSS() ([]byte, error) {
	return clientFS.ReadFile("client/reactdown.css")
}

// GetReloadJS returns the live-reload client script
func GetReloadJS() ([]byte, error) {
	return clientFS.ReadFile("client/reload.js")
}
