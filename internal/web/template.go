package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/status"
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
	"clock": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"airClass": func(l logic.AlarmLevel) string {
		switch l {
		case logic.AlarmOk:
			return "ok"
		case logic.AlarmWarning:
			return "warning"
		case logic.AlarmCritical:
			return "critical"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Study Station {{.DeviceID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.warning { color: orange; font-weight: bold; }
.critical { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Study Station {{.DeviceID}} ({{.Role}})</h1>

{{if eq .Role "primary"}}
<h2>Session</h2>
<table>
<tr><th>State</th><td id="state">{{stateOrUnknown .Session.State}}</td></tr>
<tr><th>Session</th><td>{{if .Session.SessionID}}{{.Session.SessionID}}{{else}}none{{end}}</td></tr>
<tr><th>Remaining</th><td>{{clock .Session.Remaining}}</td></tr>
<tr><th>Breaks</th><td>{{.Session.PauseCount}}</td></tr>
<tr><th>Work time</th><td>{{uptime .Session.WorkTime}}</td></tr>
<tr><th>Break time</th><td>{{uptime .Session.BreakTime}}</td></tr>
<tr><th>Undo depth</th><td>{{.Session.HistoryDepth}}</td></tr>
</table>
{{else}}
<h2>Break</h2>
<table>
<tr><th>Active</th><td id="break">{{if .Break.Active}}yes{{else}}no{{end}}</td></tr>
{{if .Break.Active}}<tr><th>Session</th><td>{{.Break.SessionID}} (break {{.Break.Pause}})</td></tr>
<tr><th>Remaining</th><td>{{clock .Break.Remaining}}</td></tr>{{end}}
<tr><th>Breaks completed</th><td>{{.Break.Breaks}}</td></tr>
<tr><th>Last phase</th><td>{{stateOrUnknown .Break.LastPhase}}</td></tr>
</table>
{{end}}

<h2>Air Quality</h2>
<table>
{{if .AirChecked}}<tr><th>Level</th><td id="air" class="{{airClass .Air.Level}}">{{.Air.Level}}</td></tr>
<tr><th>CO2</th><td>{{if .Air.HasValue}}{{printf "%.0f" .Air.LastValue}} ppm{{else}}n/a{{end}}{{if .Air.Degraded}} (sensor degraded){{end}}</td></tr>
{{else}}<tr><th>Level</th><td id="air" class="unknown">UNKNOWN</td></tr>{{end}}
{{if .Config.Critical}}<tr><th>Thresholds</th><td>{{.Config.Warning}} / {{.Config.Critical}} ppm</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.StoreURL}}<tr><th>Store</th><td>{{.Config.StoreURL}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Work / break</th><td>{{uptime .Config.WorkDuration}} / {{uptime .Config.BreakDuration}}{{if .Config.BreakMode}} ({{.Config.BreakMode}}){{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.Heartbeat 0}}disabled{{else}}{{uptime .Config.Heartbeat}}{{end}}</td></tr>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
