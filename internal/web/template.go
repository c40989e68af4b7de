package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/smart-parking/internal/mqtt"
	"github.com/sweeney/smart-parking/internal/status"
)

// refreshSeconds is the dashboard auto-refresh interval.
const refreshSeconds = 3

func formatUptime(d time.Duration) string {
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
}

// clock renders a duration as HH:MM:SS.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"minutes": func(m *float64) string {
		if m == nil {
			return ""
		}
		return clock(time.Duration(*m * float64(time.Minute)))
	},
	"since": func(from, now time.Time) string { return clock(now.Sub(from)) },
	"hms":   func(t time.Time) string { return t.Local().Format("15:04:05") },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>Smart Parking</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.summary th { width: 40%; }
.slots { display: grid; grid-template-columns: repeat(auto-fill, minmax(160px, 1fr)); gap: 1em; margin: 1em 0; }
.slot { padding: 1em; border: 3px solid #4caf50; text-align: center; }
.slot.occupied { border-color: #f44336; }
.slot.flash { animation: flash-border 1s ease-in-out 3; }
@keyframes flash-border { 0% { border-color: #f44336; } 50% { border-color: #ff9999; } 100% { border-color: #f44336; } }
.free { color: green; font-weight: bold; }
.full, .occ { color: #f44336; font-weight: bold; }
.empty { color: #888; text-align: center; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Smart Parking{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<table class="summary">
<tr><th>Total</th><td>{{.Parking.Total}}</td></tr>
<tr><th>Free</th><td>{{.Parking.Free}}</td></tr>
<tr><th>Occupied</th><td>{{.Parking.Occupied}}</td></tr>
<tr><th>Status</th><td id="lot-status" class="{{if eq .Parking.Free 0}}full{{else}}free{{end}}">{{if eq .Parking.Free 0}}FULL{{else}}Available{{end}}</td></tr>
<tr><th>Revenue</th><td>${{.Parking.Revenue.StringFixed 2}}</td></tr>
</table>

<div class="slots">
{{range .Parking.Slots}}<div class="slot{{if .Occupied}} occupied{{if .Recent}} flash{{end}}{{end}}">
<h3>{{.Name}}</h3>
{{if .Occupied}}<p class="occ">OCCUPIED</p>
<p>ID: {{.ID}}</p>
<p>Elapsed: {{minutes .ElapsedMinutes}}</p>{{else}}<p class="free">FREE</p>{{end}}
</div>
{{end}}</div>

<h2>Gate</h2>
<table class="summary">
<tr><th>Barrier</th><td>{{if .Gate.Open}}OPEN{{else}}CLOSED{{end}}{{if .Gate.Moving}} (moving){{end}}</td></tr>
<tr><th>Angle</th><td>{{.Gate.Current}}&deg;</td></tr>
{{if not .Gate.CloseDeadline.IsZero}}<tr><th>Closes at</th><td>{{hms .Gate.CloseDeadline}}</td></tr>{{end}}
<tr><th>Opened / Closed / Blocked</th><td>{{.Counts.GateOpened}} / {{.Counts.GateClosed}} / {{.Counts.GateBlocked}}</td></tr>
</table>

<h2>Active Tickets</h2>
<table>
<tr><th>ID</th><th>Slot</th><th>Time-In</th><th>Elapsed</th></tr>
{{range .Parking.OpenTickets}}<tr><td>{{.ID}}</td><td>{{.Slot}}</td><td>{{hms .TimeIn}}</td><td>{{since .TimeIn $.Parking.Time}}</td></tr>
{{else}}<tr><td colspan="4" class="empty">No active tickets</td></tr>
{{end}}</table>

<h2>Recent Tickets</h2>
<table>
<tr><th>ID</th><th>Slot</th><th>Duration</th><th>Fee</th><th>Time-Out</th></tr>
{{range .Parking.RecentClosed}}<tr><td>{{.ID}}</td><td>{{.Slot}}</td><td>{{.DurationMinutes}} min</td><td>${{.Fee.StringFixed 2}}</td><td>{{hms .TimeOut}}</td></tr>
{{else}}<tr><td colspan="5" class="empty">No recent tickets</td></tr>
{{end}}</table>

<h2>System</h2>
<table class="summary">
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Rate</th><td>${{.Config.RatePerMinute}}/min</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.EntryDebounceMs}}ms in / {{.Config.ExitGraceMs}}ms out</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/api/tickets">Tickets</a> &middot; <a href="/metrics">Metrics</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Topic}}";
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });
  client.on("connect", function() { setDot("ok", "live"); client.subscribe(topic); });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });
  client.on("message", function() { window.location.reload(); });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Refresh int
		Topic   string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Refresh:  refreshSeconds,
		Topic:    mqtt.Topic,
	}
	return indexTmpl.Execute(w, data)
}
