// internal/browser/session/scripts.go
package session

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/relist-cli/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// findAllJS resolves a selector to an array of elements without waiting.
const findAllJS = `function __relistFind(sel, xpath) {
  if (xpath) {
    const r = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const out = [];
    for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
    return out;
  }
  return Array.from(document.querySelectorAll(sel));
}`

// jsString encodes v as a JavaScript literal.
func jsString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// selectorScript wraps body in an IIFE where els holds the matches for selector.
func selectorScript(selector, body string) string {
	return fmt.Sprintf("(() => {\n%s\nconst els = __relistFind(%s, %t);\n%s\n})()",
		findAllJS, jsString(selector), browser.IsXPath(selector), body)
}

func countScript(selector string) string {
	return selectorScript(selector, "return els.length;")
}

func textScript(selector string) string {
	return selectorScript(selector, `if (els.length === 0) return {found: false, text: ""};
const el = els[0];
return {found: true, text: (el.innerText || el.textContent || "").trim()};`)
}

func attributeScript(selector, name string) string {
	return selectorScript(selector, fmt.Sprintf(`if (els.length === 0) return {found: false, present: false, value: ""};
const name = %s;
const el = els[0];
if (!el.hasAttribute(name)) return {found: true, present: false, value: ""};
return {found: true, present: true, value: el.getAttribute(name) || ""};`, jsString(name)))
}

func clickScript(selector string) string {
	return selectorScript(selector, `if (els.length === 0) return false;
els[0].click();
return true;`)
}
