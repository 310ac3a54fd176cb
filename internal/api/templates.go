package api

import "html/template"

const layoutHTML = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 600px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: #b00; font-weight: bold; }
.fault { color: orange; }
nav a { margin-right: 1em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{end}}
{{define "nav"}}<nav><a href="/">Home</a><a href="/temp">Temperatures</a><a href="/confirm">Shutdown</a></nav>
</body>
</html>
{{end}}`

const indexHTML = `{{template "head" .}}
<p>{{.Time}}</p>
<p>Logging: <strong id="logging">{{.Logging}}</strong></p>
{{if .LogFile}}<p>Writing to {{.LogFile}}</p>{{end}}
{{if .LogError}}<p class="fault">Last logging error: {{.LogError}}</p>{{end}}
<form method="post" action="/">
<button type="submit" name="logging" value="Log_Start">Start logging</button>
<button type="submit" name="logging" value="Log_Stop">Stop logging</button>
</form>
{{if .Message}}<p class="fault">{{.Message}}</p>{{end}}
{{template "nav" .}}`

const temperatureHTML = `{{template "head" .}}
<p>{{.Time}}</p>
<table>
<tr><th>Set temperature</th><td>{{.Setpoint}} {{.Units}}</td></tr>
<tr><th>Air temperature</th><td>{{.Air}}{{if .Air}} {{.Units}}{{end}}</td></tr>
<tr><th>Heater</th><td class="{{if eq .Heater "On"}}on{{end}}">{{.Heater}}</td></tr>
</table>
<table>
<tr><th>Channel</th><th>Temperature ({{.Units}})</th><th>Heater</th></tr>
{{range .Channels}}<tr><td>{{.Name}}</td><td class="{{if .Fault}}fault{{end}}">{{.Value}}</td><td>{{.Heater}}</td></tr>
{{end}}</table>
{{template "nav" .}}`

const confirmHTML = `{{template "head" .}}
<p>Shut the controller down? The heaters will be switched off.</p>
<p><a href="/shutdown">Shut down in one minute</a></p>
<p><a href="/">Cancel</a></p>
{{template "nav" .}}`

const shutdownHTML = `{{template "head" .}}
{{if .Message}}<p class="fault">{{.Message}}</p>{{else}}<p>Shutting down in one minute.</p>{{end}}
<p><a href="/cancel">Cancel shutdown</a></p>
{{template "nav" .}}`

var pages = map[string]*template.Template{
	"index":       page("index", indexHTML),
	"temperature": page("temperature", temperatureHTML),
	"confirm":     page("confirm", confirmHTML),
	"shutdown":    page("shutdown", shutdownHTML),
}

func page(name, body string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layoutHTML)).Parse(body))
}
