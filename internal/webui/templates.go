package webui

import (
	"html/template"
	"strings"
	"time"

	"github.com/kubesentry/kubesentry/internal/types"
)

// PageData is what the dashboard template renders
type PageData struct {
	Version       string
	Commit        string
	Uptime        string
	Nodes         []types.Node
	Pods          []types.Pod
	Alerts        []types.Alert
	NodesFallback bool
	PodsFallback  bool
	UpdatedAt     time.Time
	Logs          []LogEntry
}

// Templates contains all HTML templates for the web UI
var Templates = template.Must(template.New("").Funcs(template.FuncMap{
	"levelClass": func(level string) string {
		switch level {
		case "error", "fatal", "panic":
			return "log-error"
		case "warn":
			return "log-warn"
		case "debug", "trace":
			return "log-debug"
		default:
			return "log-info"
		}
	},
	"phaseClass": func(phase string) string {
		switch phase {
		case "Running", "Succeeded", "Ready":
			return "ok"
		case "Pending":
			return "warn"
		default:
			return "bad"
		}
	},
	"join": strings.Join,
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
}).Parse(`
{{define "dashboard"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="60">
    <title>kubesentry</title>
    <style>
        :root {
            --bg-primary: #0d1117;
            --bg-secondary: #161b22;
            --bg-tertiary: #21262d;
            --border-color: #30363d;
            --text-primary: #e6edf3;
            --text-secondary: #8b949e;
            --accent-green: #3fb950;
            --accent-yellow: #d29922;
            --accent-red: #f85149;
            --accent-blue: #58a6ff;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 24px;
        }
        header { display: flex; justify-content: space-between; align-items: baseline; margin-bottom: 24px; }
        h1 { font-size: 22px; }
        h2 { font-size: 16px; margin-bottom: 12px; color: var(--text-secondary); }
        .meta { color: var(--text-secondary); font-size: 13px; }
        .card {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 16px;
            margin-bottom: 20px;
        }
        .banner {
            background: rgba(210, 153, 34, 0.15);
            border: 1px solid var(--accent-yellow);
            color: var(--accent-yellow);
            border-radius: 8px;
            padding: 10px 14px;
            margin-bottom: 20px;
        }
        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-secondary); font-weight: 500; }
        .ok { color: var(--accent-green); }
        .warn { color: var(--accent-yellow); }
        .bad { color: var(--accent-red); }
        .mono { font-family: "JetBrains Mono", monospace; font-size: 12px; }
        button {
            background: var(--bg-tertiary);
            color: var(--text-primary);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 3px 10px;
            cursor: pointer;
        }
        button:hover { border-color: var(--accent-blue); }
        .log-container {
            max-height: 320px;
            overflow-y: auto;
            background: var(--bg-primary);
            border-radius: 6px;
            padding: 8px;
        }
        .log-line { font-family: "JetBrains Mono", monospace; font-size: 12px; white-space: pre-wrap; }
        .log-error { color: var(--accent-red); }
        .log-warn { color: var(--accent-yellow); }
        .log-debug { color: var(--text-secondary); }
        .log-info { color: var(--text-primary); }
    </style>
</head>
<body>
    <header>
        <h1>kubesentry</h1>
        <div class="meta">{{.Version}} ({{.Commit}}) &middot; up {{.Uptime}} &middot; last cycle {{ts .UpdatedAt}}</div>
    </header>

    {{if or .NodesFallback .PodsFallback}}
    <div class="banner">Cluster API unreachable: showing demo data{{if .NodesFallback}} for nodes{{end}}{{if .PodsFallback}} for pods{{end}}.</div>
    {{end}}

    <div class="card">
        <h2>Active alerts ({{len .Alerts}})</h2>
        {{if .Alerts}}
        <table>
            <tr><th>Created</th><th>Resource</th><th>Status</th><th>Message</th><th></th></tr>
            {{range .Alerts}}
            <tr id="alert-{{.ID}}">
                <td class="mono">{{ts .CreatedAt}}</td>
                <td>{{.ResourceType}} <span class="mono">{{.ResourceRef}}</span></td>
                <td class="bad">{{.Status}}</td>
                <td>{{.Message}}</td>
                <td>
                    <button onclick="alertAction('{{.ID}}', 'PUT', '/resolve')">Resolve</button>
                    <button onclick="alertAction('{{.ID}}', 'DELETE', '')">Delete</button>
                </td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <div class="meta">No active alerts.</div>
        {{end}}
    </div>

    <div class="card">
        <h2>Nodes ({{len .Nodes}})</h2>
        <table>
            <tr><th>Name</th><th>Status</th><th>Roles</th><th>Version</th><th>CPU</th><th>Memory</th></tr>
            {{range .Nodes}}
            <tr>
                <td class="mono">{{.Name}}</td>
                <td class="{{phaseClass .Status}}">{{.Status}}</td>
                <td>{{join .Roles ", "}}</td>
                <td>{{.KubeletVersion}}</td>
                <td>{{.CPU}}</td>
                <td>{{.Memory}}</td>
            </tr>
            {{end}}
        </table>
    </div>

    <div class="card">
        <h2>Pods ({{len .Pods}})</h2>
        <table>
            <tr><th>Namespace</th><th>Name</th><th>Phase</th><th>Node</th><th>IP</th><th>Containers</th></tr>
            {{range .Pods}}
            <tr>
                <td>{{.Namespace}}</td>
                <td class="mono">{{.Name}}</td>
                <td class="{{phaseClass .Phase}}">{{.Phase}}</td>
                <td>{{.NodeName}}</td>
                <td class="mono">{{.PodIP}}</td>
                <td>
                    {{range .Containers}}
                    <div><span class="mono">{{.Name}}</span> <span class="{{phaseClass .State}}">{{.State}}{{if .Reason}} ({{.Reason}}){{end}}</span>{{if .RestartCount}} &middot; {{.RestartCount}} restarts{{end}}</div>
                    {{end}}
                </td>
            </tr>
            {{end}}
        </table>
    </div>

    <div class="card">
        <h2>Recent logs</h2>
        <div class="log-container">
            {{range .Logs}}
            <div class="log-line {{levelClass .Level}}">{{.Timestamp.Format "15:04:05"}} [{{.Level}}] {{.Message}}</div>
            {{end}}
        </div>
    </div>

    <script>
        async function alertAction(id, method, suffix) {
            const res = await fetch('/api/alerts/' + encodeURIComponent(id) + suffix, { method: method });
            if (res.ok) {
                const row = document.getElementById('alert-' + id);
                if (row) row.remove();
            } else {
                const data = await res.json().catch(() => ({}));
                alert(data.error || ('Request failed: ' + res.status));
            }
        }

        function refreshLogs() {
            fetch('/api/logs?limit=200')
                .then(res => res.json())
                .then(entries => {
                    const container = document.querySelector('.log-container');
                    if (!container) return;
                    const wasAtBottom = container.scrollHeight - container.scrollTop <= container.clientHeight + 50;
                    container.innerHTML = '';
                    entries.forEach(e => {
                        const div = document.createElement('div');
                        div.className = 'log-line ' + levelClass(e.level);
                        div.textContent = new Date(e.timestamp).toLocaleTimeString() + ' [' + e.level + '] ' + e.message;
                        container.appendChild(div);
                    });
                    if (wasAtBottom) container.scrollTop = container.scrollHeight;
                })
                .catch(() => {});
        }

        function levelClass(level) {
            switch (level) {
                case 'error': case 'fatal': case 'panic': return 'log-error';
                case 'warn': return 'log-warn';
                case 'debug': case 'trace': return 'log-debug';
                default: return 'log-info';
            }
        }

        setInterval(refreshLogs, 5000);
    </script>
</body>
</html>
{{end}}
`))
