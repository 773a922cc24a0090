package wms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const legendBase = "https://gs.example/geoserver/wms?REQUEST=GetLegendGraphic&FORMAT=image/png&LAYER="

func TestLayerData_withGeoservice(t *testing.T) {
	f := NewFormatter("https://gs.example/geoserver", legendBase)

	got := f.LayerData([]string{"roads"}, Options{Geoservice: "wms"})

	assert.Equal(t, LayerDescriptor{
		URL:         "https://gs.example/geoserver/wms",
		Layers:      "roads",
		Transparent: true,
		Format:      "image/png",
		Version:     "1.1.0",
		Time:        "P1Y/PRESENT",
	}, got)
}

func TestLayerData_defaultsAndOverrides(t *testing.T) {
	f := NewFormatter("https://gs.example/geoserver/", legendBase)

	got := f.LayerData([]string{"geo:view1", "geo:view2"}, Options{})
	assert.Equal(t, "https://gs.example/geoserver", got.URL)
	assert.Equal(t, "geo:view1,geo:view2", got.Layers)
	assert.True(t, got.Transparent)

	got = f.LayerData([]string{"geo:view1"}, Options{GeoserverURL: "http://other/gs", Geoservice: "wms", Opaque: true})
	assert.Equal(t, "http://other/gs/wms", got.URL)
	assert.False(t, got.Transparent)

	got = f.LayerData([]string{"geo:view1"}, Options{GeoserverURL: "   "})
	assert.Equal(t, "https://gs.example/geoserver", got.URL, "blank override falls back to the base URL")
}

func TestNewFormatter_onlyTrimsTrailingSlashes(t *testing.T) {
	f := NewFormatter("https://gs.example/geo%20server//", legendBase+"/")

	assert.Equal(t, "https://gs.example/geo%20server", f.BaseURL)
	assert.Equal(t, "https://gs.example/geo%20server/wms", f.LayerData([]string{"roads"}, Options{Geoservice: "/wms/"}).URL)
	assert.Equal(t, legendBase+"/", f.LegendURL)
}

func TestLegend(t *testing.T) {
	f := NewFormatter("https://gs.example/geoserver", legendBase)

	got := f.Legend("Deforestation", "geo", "view12")

	assert.Equal(t, "Deforestation", got.Title)
	assert.Equal(t, legendBase+"geo:view12", got.URL)
}
