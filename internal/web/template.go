package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/status"
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
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"duration": func(c *logic.RestCycle) string {
		if c.EndTime.IsZero() {
			return "-"
		}
		return c.Duration().Truncate(time.Minute).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Rest Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.resting { color: green; font-weight: bold; }
.waiting { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Rest Monitor: {{.Config.VehicleID}}</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Open}}resting{{else}}waiting{{end}}">{{if .Open}}RESTING{{else}}WAITING{{end}}</td></tr>
<tr><th>Last sample</th><td>{{ts .LastSample}}</td></tr>
{{with .Open}}<tr><th>Resting since</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Range</th><td>{{printf "%.1f" .StartRange}} &rarr; {{printf "%.1f" .EndRange}}</td></tr>
<tr><th>SOC</th><td>{{printf "%.1f" .StartSOC}}% &rarr; {{printf "%.1f" .EndSOC}}%</td></tr>{{end}}
</table>

<h2>Last Rest Cycle</h2>
{{with .Last}}<table>
<tr><th>Start</th><td>{{ts .StartTime}}</td></tr>
<tr><th>End</th><td>{{ts .EndTime}}</td></tr>
<tr><th>Duration</th><td>{{duration .}}</td></tr>
<tr><th>Range</th><td>{{printf "%.1f" .StartRange}} &rarr; {{printf "%.1f" .EndRange}}</td></tr>
<tr><th>SOC</th><td>{{printf "%.1f" .StartSOC}}% &rarr; {{printf "%.1f" .EndSOC}}%</td></tr>
<tr><th>Location</th><td>{{printf "%.5f" .Latitude}}, {{printf "%.5f" .Longitude}}</td></tr>
</table>{{else}}<p>none yet</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Telemetry</th><td>{{.Config.TelemetryTopic}}</td></tr>
<tr><th>History</th><td>{{if .Config.HistoryEnabled}}enabled (<a href="/cycles.json">cycles</a>){{else}}disabled{{end}}</td></tr>
<tr><th>Dashboard</th><td>{{if .Config.DashboardEnabled}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Samples</th><td>{{.Counts.Samples}}</td></tr>
<tr><th>Out of window</th><td>{{.Counts.OutOfWindow}}</td></tr>
<tr><th>Started</th><td>{{.Counts.Started}}</td></tr>
<tr><th>Emitted</th><td>{{.Counts.Emitted}}</td></tr>
<tr><th>Too short</th><td>{{.Counts.DiscardedShort}}</td></tr>
<tr><th>Range gain</th><td>{{.Counts.DiscardedGain}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{ts .StartTime}}</td></tr>
<tr><th>Window</th><td>{{.Config.Window}}</td></tr>
<tr><th>Voltage threshold</th><td>{{.Config.VoltageThreshold}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
