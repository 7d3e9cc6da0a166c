package api

const streamsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Streams · chatsnap</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
    }
    nav .brand { font-weight: 600; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 32px 16px 64px; }
    h1 { margin: 0 0 8px; font-size: 26px; color: #e6edf3; }
    h2 { margin: 36px 0 12px; font-size: 18px; color: #e6edf3; border-bottom: 1px solid #21262d; padding-bottom: 8px; }
    .endpoint {
      display: inline-block;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 8px 14px;
      margin-bottom: 16px;
      font-family: "SFMono-Regular", Consolas, Menlo, monospace;
    }
    .method { background: #1f6feb; color: #fff; font-size: 11px; font-weight: 700; padding: 2px 7px; border-radius: 4px; margin-right: 8px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 20px; font-size: 13px; }
    th { text-align: left; padding: 8px 12px; background: #161b22; color: #8b949e; border-bottom: 1px solid #30363d; }
    td { padding: 8px 12px; border-bottom: 1px solid #21262d; vertical-align: top; }
    code { font-family: "SFMono-Regular", Consolas, Menlo, monospace; font-size: 12px; background: #161b22; border: 1px solid #30363d; border-radius: 3px; padding: 1px 5px; color: #e6edf3; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 16px; overflow-x: auto; }
    pre code { background: none; border: none; padding: 0; font-size: 13px; color: #c9d1d9; }
  </style>
</head>
<body>

<nav>
  <span class="brand">chatsnap</span>
  <a href="/docs">REST API Docs</a>
</nav>

<main>
  <h1>Event &amp; Feed Streams</h1>
  <p>Two long-lived endpoints sit beside the JSON API: an SSE stream of pipeline events and a WebSocket that accepts message feed updates.</p>

  <h2 id="events">Events (SSE)</h2>
  <div class="endpoint"><span class="method">GET</span>/api/v1/events</div>
  <p>Filter with <code>?kinds=capture.stored,capture.failed</code>. Slow clients have events dropped.</p>
  <table>
    <thead><tr><th>Kind</th><th>Data</th></tr></thead>
    <tbody>
      <tr><td><code>capture.stored</code></td><td>capture metadata with <code>position</code> and <code>filename</code></td></tr>
      <tr><td><code>capture.failed</code></td><td><code>{source, mode, code, error}</code></td></tr>
      <tr><td><code>capture.deleted</code></td><td><code>{id, remaining}</code></td></tr>
      <tr><td><code>history.cleared</code></td><td><code>{removed}</code></td></tr>
      <tr><td><code>archive.exported</code></td><td><code>{name, entries, location}</code></td></tr>
      <tr><td><code>auto_capture.changed</code></td><td><code>{enabled}</code></td></tr>
      <tr><td><code>feed.length</code></td><td><code>{length}</code></td></tr>
    </tbody>
  </table>
<pre><code>curl -N "http://127.0.0.1:8199/api/v1/events?kinds=capture.stored"

event: capture.stored
data: {"id":"0192...","width":750,"height":1624,"position":1,"filename":"screenshot-1.png"}</code></pre>

  <h2 id="feed">Feed (WebSocket)</h2>
  <div class="endpoint"><span class="method">GET</span>/api/v1/feed/ws</div>
  <p>Each text frame carries exactly one of the fields below and is answered with <code>{"ok":true,"length":N}</code> or an <code>error</code>. A growing length fires an auto capture when the toggle is on.</p>
  <table>
    <thead><tr><th>Frame</th><th>Effect</th></tr></thead>
    <tbody>
      <tr><td><code>{"count":N}</code></td><td>publish length N</td></tr>
      <tr><td><code>{"append":{...}}</code></td><td>append one message to the memory feed</td></tr>
      <tr><td><code>{"messages":[...]}</code></td><td>replace the memory feed</td></tr>
    </tbody>
  </table>
  <p>Messages are <code>{"sender":1|2,"type":"text"|"image","content":"...","time":"9:41","read":false}</code>.</p>
</main>

</body>
</html>`
