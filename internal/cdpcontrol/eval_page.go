package cdpcontrol

import (
	"strconv"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

func jsBox(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
return JSON.stringify({ok:true,data:{width:root.offsetWidth,height:root.offsetHeight}});`)
}

func jsMeasureBubbles(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
var list = content.querySelectorAll(` + jsString(t.Bubble) + `);
var out = [];
for (var i = 0; i < list.length; i++) {
  var r = list[i].getBoundingClientRect();
  out.push({width:r.width,height:r.height});
}
return JSON.stringify({ok:true,data:out});`)
}

func jsScrollState(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
return JSON.stringify({ok:true,data:{scroll_top:area.scrollTop,viewport_height:area.clientHeight,content_height:area.scrollHeight}});`)
}

func jsScrollTop(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
return JSON.stringify({ok:true,data:area.scrollTop});`)
}

func jsPresentation(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
return JSON.stringify({ok:true,data:{
  viewport_overflow:area.style.overflow,
  viewport_height:area.style.height,
  viewport_scroll_top:area.scrollTop,
  content_transform:content.style.transform,
  content_will_change:content.style.willChange
}});`)
}

// jsApplyPresentation writes inline styles before the scroll offset so the
// offset lands on the final overflow mode.
func jsApplyPresentation(t capture.Target, p capture.Presentation) string {
	return wrapJSEval(jsTargetPreamble(t) + `
area.style.overflow = ` + jsString(p.ViewportOverflow) + `;
area.style.height = ` + jsString(p.ViewportHeight) + `;
content.style.transform = ` + jsString(p.ContentTransform) + `;
content.style.willChange = ` + jsString(p.ContentWillChange) + `;
area.scrollTop = ` + jsNumber(p.ViewportScrollTop) + `;
return JSON.stringify({ok:true});`)
}

func jsScrollToBottom(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
var bottom = document.querySelector(` + jsString(t.Bottom) + `);
if (bottom && typeof bottom.scrollIntoView === "function") {
  bottom.scrollIntoView({block:"end"});
} else {
  area.scrollTop = area.scrollHeight;
}
return JSON.stringify({ok:true,data:area.scrollTop});`)
}

func jsScrollTo(t capture.Target, top float64) string {
	return wrapJSEval(jsTargetPreamble(t) + `
area.scrollTop = ` + jsNumber(top) + `;
return JSON.stringify({ok:true,data:area.scrollTop});`)
}

func jsImageCount(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
return JSON.stringify({ok:true,data:content.querySelectorAll("img").length});`)
}

// jsAwaitImage resolves once image index has loaded or failed. A missing
// index counts as ready.
func jsAwaitImage(t capture.Target, index int) string {
	return wrapJSEvalAsync(jsTargetPreamble(t) + `
var img = content.querySelectorAll("img")[` + strconv.Itoa(index) + `];
if (img && !img.complete) {
  await new Promise(function(resolve) {
    img.addEventListener("load", resolve, {once:true});
    img.addEventListener("error", resolve, {once:true});
  });
}
return JSON.stringify({ok:true});`)
}

func jsAwaitFonts() string {
	return wrapJSEvalAsync(`
if (document.fonts && document.fonts.ready) { await document.fonts.ready; }
return JSON.stringify({ok:true});`)
}

func jsNextFrame() string {
	return wrapJSEvalAsync(jsNextFramePair + `
return JSON.stringify({ok:true});`)
}

// jsSnapshot serializes a standalone document holding only the capture root,
// pinned to its live box. Scripts are dropped so the copy stays static.
func jsSnapshot(t capture.Target) string {
	return wrapJSEval(jsTargetPreamble(t) + `
var doc = document.documentElement.cloneNode(true);
var scripts = doc.querySelectorAll("script, link[rel=modulepreload]");
for (var i = 0; i < scripts.length; i++) { scripts[i].parentNode.removeChild(scripts[i]); }
var body = doc.querySelector("body");
if (!body) { body = document.createElement("body"); doc.appendChild(body); }
while (body.firstChild) { body.removeChild(body.firstChild); }
body.setAttribute("style", "margin:0;");
var copy = root.cloneNode(true);
copy.style.width = root.offsetWidth + "px";
copy.style.height = root.offsetHeight + "px";
body.appendChild(copy);
return JSON.stringify({ok:true,data:{
  html:"<!DOCTYPE html>" + doc.outerHTML,
  base_url:document.baseURI,
  width:root.offsetWidth,
  height:root.offsetHeight
}});`)
}

// jsInstallFeedObserver reports the bubble count through the named binding
// whenever the content wrapper's subtree changes. Reinstalling is a no-op.
func jsInstallFeedObserver(t capture.Target, bindingName string) string {
	return wrapJSEval(jsTargetPreamble(t) + `
var name = ` + jsString(bindingName) + `;
if (typeof window[name] !== "function") {
  return JSON.stringify({ok:false,error_code:"` + capture.CodeCDPUnavailable + `",error_message:"binding " + name + " missing"});
}
var key = "__chatsnapObserver_" + name;
if (window[key] && window[key].target === content) {
  return JSON.stringify({ok:true,data:{installed:false,count:window[key].count}});
}
if (window[key]) { window[key].observer.disconnect(); }
var state = {target:content,count:-1,observer:null};
function report() {
  var n = content.querySelectorAll(` + jsString(t.Bubble) + `).length;
  if (n === state.count) return;
  state.count = n;
  window[name](String(n));
}
state.observer = new MutationObserver(report);
state.observer.observe(content, {childList:true,subtree:true});
window[key] = state;
report();
return JSON.stringify({ok:true,data:{installed:true,count:state.count}});`)
}

func jsNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
