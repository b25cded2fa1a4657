package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plant-waterer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"ms": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plant Waterer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.dry { color: #b06000; font-weight: bold; }
.moist { color: green; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Plant Waterer</h1>

<h2>Soil</h2>
<table>
<tr><th>Phase</th><td id="phase">{{if .Phase}}{{.Phase}}{{else}}UNKNOWN{{end}}</td></tr>
{{if .Reading}}<tr><th>Dryness</th><td id="dryness" class="{{if .Reading.Dry}}dry{{else}}moist{{end}}">{{.Reading.Value}} / {{.Config.Threshold}}{{if .Reading.Dry}} (dry){{end}}</td></tr>
<tr><th>Read at</th><td>{{rfc3339 .Reading.At}}</td></tr>
{{if .Reading.Err}}<tr><th>Sensor error</th><td class="disconnected">{{.Reading.Err}}</td></tr>{{end}}
{{else}}<tr><th>Dryness</th><td id="dryness" class="unknown">no reading yet</td></tr>{{end}}
<tr><th>Watering</th><td>{{if .Watering}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Window</h2>
<table>
<tr><th>Position</th><td id="check-time">{{.CheckTime}} / {{.Config.Period}}</td></tr>
<tr><th>Doses</th><td id="check-count">{{.CheckCount}} (min {{.Config.Min}}, max {{.Config.Max}})</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td id="last-event">{{.LastEvent.Type}} at {{rfc3339 .LastEvent.Timestamp}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Watered</th><td>{{.Counts.Watered}}</td></tr>
<tr><th>Compensated</th><td>{{.Counts.Compensated}}</td></tr>
<tr><th>Skipped</th><td>{{.Counts.Skipped}}</td></tr>
<tr><th>Faults</th><td>{{.Counts.Faults}}</td></tr>
<tr><th>Windows</th><td>{{.Counts.Windows}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{rfc3339 .StartTime}}</td></tr>
<tr><th>Interval</th><td>{{ms .Config.IntervalMs}}</td></tr>
<tr><th>Dose</th><td>{{ms .Config.DoseMs}}</td></tr>
<tr><th>Warm-up</th><td>{{ms .Config.WarmupMs}}</td></tr>
<tr><th>Debug</th><td>{{if .Config.Debug}}on (sample {{ms .Config.SampleMs}}){{else}}off{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{ms .Config.HeartbeatMs}}{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
