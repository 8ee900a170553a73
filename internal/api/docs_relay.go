package api

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Progress events and relay | Design Assistant</title>
  <style>` + docsStyle + `</style>
</head>
<body>
<div class="page">
  <a href="/docs">Back to the REST API</a>
  <h1>Progress events and relay</h1>
  <p class="note">Follow a running critique, or talk to a capture relay directly.</p>

  <h2 id="events">Progress events</h2>
  <p class="route"><b>GET</b>/api/v1/critique/events</p>
  <p>
    A running critique publishes a <code>tick</code> every elapsed second and one
    <code>terminal</code> event when it ends. Ticks stop before the terminal event is sent.
    Pass <code>?events=terminal</code> (comma separated) to receive only some events.
  </p>
  <pre><code>event: tick
data: {"elapsed_seconds":2,"label":"⏳ 2s","query_time":"Query Time: 2s"}

event: terminal
data: {"status":"success","feedback":"...","elapsed_seconds":3,"headline":"Analysis complete!","query_time":"Query Time: 3s (completed)"}

: ping</code></pre>
  <p class="note">A subscriber that falls behind loses ticks. Its terminal event replaces the oldest queued one.</p>

  <h2 id="relay">Capture relay</h2>
  <p class="route"><b>WS</b>/relay</p>
  <p>
    The <code>relay</code> binary reads one JSON message per connection, sends exactly one
    reply carrying the same <code>id</code>, and closes. Captures give up after
    <code>RELAY_CAPTURE_TIMEOUT_SEC</code> seconds (15 by default).
  </p>
  <pre><code>{"id":"7f1c...","action":"capture","mode":"custom","prompt":"Is the signup button obvious?"}</code></pre>
  <pre><code>{"id":"7f1c...","success":true,"feedback":"...","processing_time":2.4}
{"id":"7f1c...","error":true,"kind":"capture_failed","message":"no active tab"}</code></pre>
  <p class="note">
    The controller treats a reply with a different or missing id, an unknown kind, or
    <code>invalid_input</code> as a transport failure.
  </p>

  <h2 id="kinds">Error kinds</h2>
  <table>
    <tr><th>Kind</th><th>HTTP</th><th>Meaning</th></tr>
    <tr><td><code>invalid_input</code></td><td>400 / 409</td><td>Rejected locally before the relay is contacted</td></tr>
    <tr><td><code>capture_failed</code></td><td>503</td><td>No visible tab could be captured in time</td></tr>
    <tr><td><code>transport_failed</code></td><td>502</td><td>The relay could not be reached or answered out of protocol</td></tr>
    <tr><td><code>remote_service_failed</code></td><td>502</td><td>The analysis service answered with an error</td></tr>
  </table>
</div>
</body>
</html>`
