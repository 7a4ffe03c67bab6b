package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"strings"
	"time"

	"github.com/Geocene/firefinder/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"optional": func(v *float64) string {
		if v == nil {
			return "off"
		}
		return fmt.Sprintf("%g", *v)
	},
	"orNone": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
	"uptime": formatUptime,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Firefinder</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.failed { color: red; }
.fire { color: #c60; font-weight: bold; }
</style>
</head>
<body>
<h1>Firefinder</h1>

<h2>Runs</h2>
<table>
<tr><th>Completed</th><td>{{.Totals.Runs}}</td></tr>
<tr><th>Failed</th><td>{{.Totals.Failures}}</td></tr>
<tr><th>Samples</th><td>{{.Totals.Samples}}</td></tr>
<tr><th>Fire events</th><td>{{.Totals.Events}}</td></tr>
</table>

{{if .Recent}}<h2>Recent</h2>
<table>
<tr><th>Time</th><th>Source</th><th>Samples</th><th>Events</th></tr>
{{range .Recent}}<tr><td>{{utc .At}}</td><td>{{.Source}}</td><td>{{.Samples}}</td>{{if .Error}}<td class="failed">{{.Error}}</td>{{else}}<td{{if .Events}} class="fire"{{end}}>{{.Events}}</td>{{end}}</tr>
{{end}}</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{orNone .Config.Broker}}</td></tr>
<tr><th>Kafka topic</th><td>{{orNone .Config.KafkaTopic}}</td></tr>
<tr><th>Store</th><td>{{orNone .Config.StorePath}}</td></tr>
</table>

<h2>Detector</h2>
<table>
<tr><th>Primary threshold</th><td>{{.Config.Params.PrimaryThreshold}}</td></tr>
<tr><th>Min event</th><td>{{.Config.Params.MinEventSec}}s</td></tr>
<tr><th>Min break</th><td>{{.Config.Params.MinBreakSec}}s</td></tr>
<tr><th>Rise rate</th><td>{{.Config.Params.RiseRate}}</td></tr>
<tr><th>Fall rate</th><td>{{.Config.Params.FallRate}}</td></tr>
<tr><th>Ambient correction</th><td>{{if .Config.Params.Correction}}on{{else}}off{{end}}</td></tr>
<tr><th>Min event temp</th><td>{{optional .Config.Params.MinEventTemp}}</td></tr>
<tr><th>Min event delta</th><td>{{optional .Config.Params.MinEventTempDelta}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/runs">Runs</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

// formatUptime renders d as "1d 3h 4m 5s", leaving out leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{secs / 86400, "d"},
		{secs / 3600 % 24, "h"},
		{secs / 60 % 60, "m"},
		{secs % 60, "s"},
	}
	var b strings.Builder
	for i, p := range parts {
		if b.Len() == 0 && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d%s", p.n, p.unit)
	}
	return b.String()
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("render index: %v", err)
	}
}
