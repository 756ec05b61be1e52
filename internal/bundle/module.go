package bundle

import (
	"fmt"
	"path"
	"strings"
)

// commonJSDefinition is the module-definition preamble emitted at the top
// of script bundles containing wrapped modules. It installs a minimal
// registry-backed require so each wrapped file is loadable by name.
const commonJSDefinition = `(function() {
  var modules = {};
  var cache = {};
  var require = function(name) {
    if (cache[name]) return cache[name].exports;
    if (!modules[name]) throw new Error("Cannot find module '" + name + "'");
    var module = cache[name] = {exports: {}};
    modules[name].call(module.exports, module.exports, require, module);
    return module.exports;
  };
  require.register = function(name, definition) {
    modules[name] = definition;
  };
  this.require = require;
}).call(this);`

// CommonJSWrapper wraps a file as a named, registry-loadable module. The
// module name is the path without its extension.
func CommonJSWrapper(filePath string) (prefix, suffix string) {
	prefix = fmt.Sprintf("require.register(%q, function(exports, require, module) {", ModuleName(filePath))
	suffix = "});"
	return prefix, suffix
}

// ModuleName derives the runtime module name for a file path.
func ModuleName(filePath string) string {
	ext := path.Ext(filePath)
	return strings.TrimSuffix(filePath, ext)
}

// CommonJSDefinition returns the module-definition preamble.
func CommonJSDefinition() string {
	return commonJSDefinition
}
