package cdpcontrol

import (
	"encoding/json"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

// jsTargetPreamble resolves the capture target elements and bails out with
// TARGET_NOT_FOUND when any of them is missing.
func jsTargetPreamble(t capture.Target) string {
	return `
var root = document.querySelector(` + jsString(t.Root) + `);
var area = document.querySelector(` + jsString(t.Viewport) + `);
var content = document.querySelector(` + jsString(t.Content) + `);
if (!root || !area || !content) {
  return JSON.stringify({ok:false,error_code:"` + capture.CodeTargetNotFound + `",error_message:"capture target not found"});
}`
}

const jsNextFramePair = `
await new Promise(function(resolve) {
  var done = false;
  function finish() { if (!done) { done = true; resolve(); } }
  requestAnimationFrame(function() { requestAnimationFrame(finish); });
  setTimeout(finish, 100);
});`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + capture.CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
