package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-sensor/internal/status"
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
	"ms": func(v int64) string {
		if v == 0 {
			return "disabled"
		}
		return fmt.Sprintf("%dms", v)
	},
	"pins": func(p []int) string {
		out := ""
		for i, pin := range p {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprintf("%d", pin)
		}
		return out
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Sensor (node {{.Config.NodeID}})</h1>

<h2>Children</h2>
<table id="children">
<tr><th>Child</th><th>Sensor</th><th>Pins</th><th>Value</th></tr>
{{range .Children}}<tr>
<td>{{.ID}} {{.Name}}</td>
<td>{{.Sensor}}</td>
<td>{{pins .Pins}}</td>
<td id="child-{{.ID}}" class="{{if not .Reported}}unknown{{else if eq .Value 1}}on{{else}}off{{end}}">{{if .Reported}}{{.Value}}{{else}}UNKNOWN{{end}}</td>
</tr>{{else}}<tr><td colspan="4">no children</td></tr>{{end}}
</table>
<table>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Interrupts</th><td>{{.Counts.Interrupts}}</td></tr>
<tr><th>No-ops</th><td>{{.Counts.NoOps}}</td></tr>
<tr><th>Reports</th><td>{{.Counts.Reports}}</td></tr>
<tr><th>Errors</th><td>{{.Counts.Errors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Mode</th><td>{{if .Config.Interrupts}}interrupts{{else}}poll every {{.Config.PollMs}}ms{{end}}</td></tr>
<tr><th>Debounce</th><td>{{ms .Config.DebounceMs}}</td></tr>
<tr><th>Report interval</th><td>{{ms .Config.ReportIntervalMs}}</td></tr>
<tr><th>Heartbeat</th><td>{{ms .Config.HeartbeatMs}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  function refresh() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(s) {
      (s.status.children || []).forEach(function(c) {
        var el = document.getElementById("child-" + c.id);
        if (!el) return;
        if (c.value === null) {
          el.textContent = "UNKNOWN";
          el.className = "unknown";
        } else {
          el.textContent = c.value;
          el.className = c.value === 1 ? "on" : "off";
        }
      });
    }).catch(function() {});
  }
  setInterval(refresh, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has an Uptime method; the template needs a field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
