package api

import "strings"

const docsTemplate = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
  <title>{{TITLE}}</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>` + docsStyle + `</style>
</head>
<body class="api-docs">
  {{LINK}}
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`

// docsStyle is shared by the API reference and the events page.
const docsStyle = `
body { margin: 0; background: #10141a; color: #d0d6de; font: 14px/1.6 system-ui, sans-serif; }
body.api-docs { height: 100vh; position: relative; }
a { color: #6cb6ff; }
.page code, .page pre { font-family: ui-monospace, Menlo, monospace; font-size: 13px; }
.page code { background: #1a2029; border-radius: 3px; padding: 0 4px; }
.page pre { background: #1a2029; border-left: 3px solid #3d7be0; padding: 12px 14px; overflow-x: auto; }
.page pre code { padding: 0; }
.page { max-width: 860px; margin: 0 auto; padding: 24px 20px 64px; }
.page h1 { font-size: 24px; margin: 8px 0 4px; }
.page h2 { font-size: 17px; margin: 32px 0 8px; border-bottom: 1px solid #2a313c; padding-bottom: 4px; }
.page table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; }
.page th, .page td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #2a313c; vertical-align: top; }
.page th { color: #8d96a3; font-weight: 600; }
.route { font-family: ui-monospace, Menlo, monospace; }
.route b { background: #3d7be0; color: #fff; border-radius: 3px; padding: 1px 6px; margin-right: 8px; font-size: 11px; }
.note { color: #8d96a3; }
.nav-link { position: fixed; top: 12px; right: 16px; z-index: 9999; background: #1a2029; border: 1px solid #2a313c; border-radius: 6px; padding: 4px 12px; font-size: 12px; text-decoration: none; }
`

const eventsLink = `<a class="nav-link" href="/docs/events">Progress events and relay</a>`

func docsPage(title string, withEvents bool) string {
	link := ""
	if withEvents {
		link = eventsLink
	}
	return strings.NewReplacer("{{TITLE}}", title, "{{LINK}}", link).Replace(docsTemplate)
}
