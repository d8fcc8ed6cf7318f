// Package dashboard provides the embedded status page of a watcher.
//
// The page subscribes to the server's event stream and shows the current
// monitor state, the last status text and the transition log. It is served
// at "/" when the status server is enabled.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
//	assets/
//	  index.html    - status page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
