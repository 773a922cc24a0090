// Package wms formats the rendering descriptors a map client needs to request a GeoServer
// layer over WMS, and the legend graphic URL shown next to it. Nothing here talks to the map
// server.
package wms

import (
	"strings"
)

const (
	ImageFormat = "image/png"
	Version     = "1.1.0"
	TimeWindow  = "P1Y/PRESENT"
)

// LayerDescriptor is the parameter set a WMS client uses to draw one layer.
type LayerDescriptor struct {
	URL         string `json:"url"`
	Layers      string `json:"layers"`
	Transparent bool   `json:"transparent"`
	Format      string `json:"format"`
	Version     string `json:"version"`
	Time        string `json:"time"`
}

type Legend struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Options tweak a single descriptor. The zero value renders a transparent layer against the
// formatter's base URL.
type Options struct {
	GeoserverURL string
	Opaque       bool
	Geoservice   string
}

type Formatter struct {
	BaseURL   string
	LegendURL string
}

// NewFormatter keeps baseURL as configured except for trailing slashes, which are dropped so
// that appending a geoservice never produces "//". legendURL is kept verbatim.
func NewFormatter(baseURL, legendURL string) Formatter {
	return Formatter{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		LegendURL: legendURL,
	}
}

// LayerData builds the descriptor for one or more qualified layer names ("workspace:name").
// Several names are joined with commas, in order.
func (f Formatter) LayerData(layers []string, opts Options) LayerDescriptor {
	base := f.BaseURL
	if u := strings.TrimSpace(opts.GeoserverURL); u != "" {
		base = strings.TrimRight(u, "/")
	}
	url := base
	if svc := strings.Trim(opts.Geoservice, "/ "); svc != "" {
		url = base + "/" + svc
	}

	return LayerDescriptor{
		URL:         url,
		Layers:      strings.Join(layers, ","),
		Transparent: !opts.Opaque,
		Format:      ImageFormat,
		Version:     Version,
		Time:        TimeWindow,
	}
}

// Legend points at the legend graphic for workspace:layer. The legend base is used verbatim,
// it normally ends in "...&layer=".
func (f Formatter) Legend(title, workspace, layer string) Legend {
	return Legend{
		Title: title,
		URL:   f.LegendURL + QualifiedName(workspace, layer),
	}
}

func QualifiedName(workspace, layer string) string {
	return workspace + ":" + layer
}
